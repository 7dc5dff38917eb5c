package router

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leca/imagehost/internal/api"
	"github.com/leca/imagehost/internal/config"
	"github.com/leca/imagehost/internal/handler"
	"github.com/leca/imagehost/internal/images"
)

// Server holds the application dependencies and HTTP router.
type Server struct {
	Images *images.Service
	Config *config.Config
	Router chi.Router
}

// New creates a new Server with a fully configured chi router.
func New(svc *images.Service, cfg *config.Config) *Server {
	s := &Server{Images: svc, Config: cfg}

	h := &handler.Handler{
		Images: svc,
		Config: cfg,
	}

	r := chi.NewRouter()

	// CORS first so preflight OPTIONS requests short-circuit.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.NotFound(w, "Not found")
	})

	// Health check (no auth required).
	r.Get("/health", s.Health)

	// Normalized image blobs (no auth required).
	r.Get("/"+images.PathPrefix+"{filename}", h.ServeUpload)

	r.Route("/api/images", func(r chi.Router) {
		r.Use(api.OwnerMiddleware(cfg.JWTSecret))

		r.Get("/", h.ListImages)
		r.Post("/", h.UploadImage)

		// Registered before the {image_id} wildcard.
		r.Get("/stats", h.GetStats)

		r.Get("/{image_id}", h.GetImage)
		r.Put("/{image_id}", h.UpdateImage)
		r.Patch("/{image_id}", h.UpdateImage)
		r.Delete("/{image_id}", h.DeleteImage)
	})

	s.Router = r
	return s
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("failed to encode health response", "error", err)
	}
}
