package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a locator does not resolve to a stored blob.
var ErrNotFound = errors.New("blob not found")

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage defines the interface for blob storage. Locators are generated by
// the store on Write and are opaque to callers.
type Storage interface {
	// Write persists data under a newly generated name ending in ext and
	// returns that name.
	Write(ctx context.Context, data io.Reader, ext string) (string, error)

	// Open returns a ReadCloser for the stored blob.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)

	// Delete removes the blob. It returns ErrNotFound if nothing was stored
	// under locator.
	Delete(ctx context.Context, locator string) error

	// SizeOf returns the byte size of the stored blob.
	SizeOf(ctx context.Context, locator string) (int64, error)

	// List returns every stored blob.
	List(ctx context.Context) ([]BlobInfo, error)
}

// PartialSweeper is implemented by stores whose interrupted writes can leave
// partial files behind. Partial files are never returned by List.
type PartialSweeper interface {
	ListPartial(ctx context.Context) ([]BlobInfo, error)
	DeletePartial(ctx context.Context, name string) error
}

// validLocator accepts generated names only: letters, digits, '-', '_' and
// a single extension dot. Anything else could escape the store root.
func validLocator(s string) bool {
	if s == "" || len(s) > 128 || s[0] == '.' {
		return false
	}
	dots := 0
	for _, c := range s {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-', c == '_':
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return dots <= 1
}
