package database

import (
	"context"
	"errors"
	"time"

	"github.com/leca/imagehost/internal/model"
)

// ErrNotFound is returned when no record matches both the id and the owner.
// A record owned by someone else is indistinguishable from a missing one.
var ErrNotFound = errors.New("image not found")

// Database defines the persistence interface for image records.
// Every read and write is scoped to an owner.
type Database interface {
	CreateImage(ctx context.Context, img *model.Image) error
	GetImage(ctx context.Context, owner, id string) (*model.Image, error)
	// ListImages returns the owner's images, newest first.
	ListImages(ctx context.Context, owner string) ([]*model.Image, error)
	// UpdateImage applies patch to title/description, sets updated_at to at
	// and returns the updated record.
	UpdateImage(ctx context.Context, owner, id string, patch model.Patch, at time.Time) (*model.Image, error)
	DeleteImage(ctx context.Context, owner, id string) error
	CountImages(ctx context.Context, owner string) (int, error)

	// FilenameExists reports whether any record references the blob filename.
	// It is not owner-scoped and only serves orphan reconciliation.
	FilenameExists(ctx context.Context, filename string) (bool, error)

	Close() error
}
