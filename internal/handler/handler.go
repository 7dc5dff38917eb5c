package handler

import (
	"github.com/leca/imagehost/internal/config"
	"github.com/leca/imagehost/internal/images"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Images *images.Service
	Config *config.Config
}
