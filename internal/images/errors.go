package images

import (
	"errors"

	"github.com/leca/imagehost/internal/database"
	"github.com/leca/imagehost/internal/imageproc"
)

// Each failed Service call matches exactly one of these with errors.Is.
var (
	// ErrInvalidUpload means the request carried no owner or no bytes.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrUnsupportedFormat means the upload is not a decodable image.
	ErrUnsupportedFormat = imageproc.ErrUnsupportedFormat
	// ErrStorageWrite means a blob could not be persisted.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrMetadataWrite means the image record could not be persisted.
	ErrMetadataWrite = errors.New("metadata write failed")
	// ErrNotFound covers both missing images and images of other owners.
	ErrNotFound = database.ErrNotFound
)
