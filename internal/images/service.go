// Package images implements the image upload pipeline and the owner-scoped
// operations on stored images.
package images

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leca/imagehost/internal/database"
	"github.com/leca/imagehost/internal/imageproc"
	"github.com/leca/imagehost/internal/model"
	"github.com/leca/imagehost/internal/storage"
)

// PathPrefix is prepended to blob filenames to form the stored image path.
const PathPrefix = "uploads/"

// Service runs the upload pipeline and scopes every operation by owner.
// It holds no mutable state of its own; concurrent calls are safe as long
// as the injected stores are.
type Service struct {
	db      database.Database
	staging storage.Storage
	store   storage.Storage
	opts    imageproc.Options
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for cleanup failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithNormalizeOptions overrides the default 800px / quality 80 normalization.
func WithNormalizeOptions(o imageproc.Options) Option {
	return func(s *Service) { s.opts = o }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. Raw uploads are staged in staging; normalized
// images are kept in store.
func New(db database.Database, staging, store storage.Storage, opts ...Option) *Service {
	s := &Service{
		db:      db,
		staging: staging,
		store:   store,
		opts:    imageproc.DefaultOptions(),
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UploadInput is one uploaded file and its optional details.
type UploadInput struct {
	Owner       string
	Data        io.Reader
	ContentType string
	Title       string
	Description string
}

// Upload stages, normalizes and persists one image. On success exactly one
// blob and one record exist for it. On failure every blob written by this
// call is removed, or logged as orphaned if removal fails.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*model.Image, error) {
	if in.Owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidUpload)
	}
	if in.Data == nil {
		return nil, fmt.Errorf("%w: no file provided", ErrInvalidUpload)
	}
	br := bufio.NewReader(in.Data)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrInvalidUpload)
		}
		return nil, fmt.Errorf("%w: reading upload: %w", ErrStorageWrite, err)
	}

	log := s.log.With("owner", in.Owner)
	// Cleanup runs even when the caller has given up on ctx.
	cleanupCtx := context.WithoutCancel(ctx)

	staged, err := s.staging.Write(ctx, br, "")
	if err != nil {
		return nil, fmt.Errorf("%w: staging upload: %w", ErrStorageWrite, err)
	}

	raw, err := s.readStaged(ctx, staged)
	if err != nil {
		s.discardStaged(cleanupCtx, log, staged)
		return nil, fmt.Errorf("%w: reading staged upload: %w", ErrStorageWrite, err)
	}

	res, err := imageproc.Normalize(raw, in.ContentType, s.opts)
	if err != nil {
		s.discardStaged(cleanupCtx, log, staged)
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	filename, err := s.store.Write(ctx, bytes.NewReader(res.Data), imageproc.OutputExt)
	if err != nil {
		s.discardStaged(cleanupCtx, log, staged)
		return nil, fmt.Errorf("%w: writing image: %w", ErrStorageWrite, err)
	}

	size, err := s.store.SizeOf(ctx, filename)
	if err == nil && size != int64(len(res.Data)) {
		err = fmt.Errorf("short write: stored %d of %d bytes", size, len(res.Data))
	}
	if err != nil {
		s.removeBlob(cleanupCtx, log, filename)
		s.discardStaged(cleanupCtx, log, staged)
		return nil, fmt.Errorf("%w: verifying image: %w", ErrStorageWrite, err)
	}

	// The normalized blob is durable; the staged original is no longer needed.
	s.discardStaged(cleanupCtx, log, staged)

	now := s.now().UTC()
	img := &model.Image{
		ID:          uuid.New().String(),
		Owner:       in.Owner,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Filename:    filename,
		Path:        PathPrefix + filename,
		ContentType: res.ContentType,
		Size:        size,
		Width:       res.Width,
		Height:      res.Height,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.CreateImage(ctx, img); err != nil {
		s.removeBlob(cleanupCtx, log, filename)
		return nil, fmt.Errorf("%w: %w", ErrMetadataWrite, err)
	}

	log.Info("image uploaded",
		"id", img.ID,
		"filename", filename,
		"source_format", res.SourceFormat,
		"size", size,
		"width", res.Width,
		"height", res.Height,
	)
	return img, nil
}

// List returns the owner's images, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]*model.Image, error) {
	images, err := s.db.ListImages(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	if images == nil {
		images = []*model.Image{}
	}
	return images, nil
}

// Get returns one of the owner's images.
func (s *Service) Get(ctx context.Context, owner, id string) (*model.Image, error) {
	img, err := s.db.GetImage(ctx, owner, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// Update changes the title and/or description of one of the owner's images.
func (s *Service) Update(ctx context.Context, owner, id string, patch model.Patch) (*model.Image, error) {
	patch.Title = trimmed(patch.Title)
	patch.Description = trimmed(patch.Description)

	img, err := s.db.UpdateImage(ctx, owner, id, patch, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrMetadataWrite, err)
	}
	return img, nil
}

// Delete removes one of the owner's images: the record first, then its blob.
// A blob that cannot be removed is logged as orphaned and left for Reconcile.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	img, err := s.Get(ctx, owner, id)
	if err != nil {
		return err
	}

	if err := s.db.DeleteImage(ctx, owner, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost a race with a concurrent delete.
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrMetadataWrite, err)
	}

	log := s.log.With("owner", owner, "id", id)
	if err := s.store.Delete(context.WithoutCancel(ctx), img.Filename); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error("orphaned blob: failed to delete image blob", "locator", img.Filename, "error", err)
	}
	log.Info("image deleted", "filename", img.Filename)
	return nil
}

// Count returns the number of images the owner has.
func (s *Service) Count(ctx context.Context, owner string) (int, error) {
	return s.db.CountImages(ctx, owner)
}

// Open streams a stored image blob by filename.
func (s *Service) Open(ctx context.Context, filename string) (io.ReadCloser, error) {
	rc, err := s.store.Open(ctx, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open image blob: %w", err)
	}
	return rc, nil
}

func (s *Service) readStaged(ctx context.Context, locator string) ([]byte, error) {
	rc, err := s.staging.Open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// discardStaged removes a staged upload. Failure is only logged: the staged
// copy is never referenced and Reconcile sweeps leftovers.
func (s *Service) discardStaged(ctx context.Context, log *slog.Logger, locator string) {
	if err := s.staging.Delete(ctx, locator); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn("failed to remove staged upload", "locator", locator, "error", err)
	}
}

// removeBlob compensates a failed upload after the permanent blob was written.
func (s *Service) removeBlob(ctx context.Context, log *slog.Logger, locator string) {
	if err := s.store.Delete(ctx, locator); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error("orphaned blob: failed to remove image blob after failed upload", "locator", locator, "error", err)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
