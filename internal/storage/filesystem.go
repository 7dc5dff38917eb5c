package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Compile-time check that FileSystem implements Storage.
var (
	_ Storage        = (*FileSystem)(nil)
	_ PartialSweeper = (*FileSystem)(nil)
)

// tempPrefix marks in-progress writes. It starts with '.' so a temp name is
// never a valid locator.
const tempPrefix = ".upload-"

// FileSystem implements Storage using a flat directory on the local filesystem.
// Blobs are stored at <basePath>/<locator>.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a new FileSystem storage rooted at basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

// blobPath returns the full path for a locator, or ErrNotFound if the
// locator is not one this store could have generated.
func (fs *FileSystem) blobPath(locator string) (string, error) {
	if !validLocator(locator) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, locator)
	}
	return filepath.Join(fs.basePath, locator), nil
}

// Write copies data to disk using atomic write (temp file + rename) under a
// fresh uuid-based name.
func (fs *FileSystem) Write(ctx context.Context, data io.Reader, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", fs.basePath, err)
	}

	tmp, err := os.CreateTemp(fs.basePath, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	locator := uuid.New().String() + ext
	dst := filepath.Join(fs.basePath, locator)
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("renaming temp file to %s: %w", dst, err)
	}
	tmpPath = ""

	return locator, nil
}

// Open opens the stored blob for reading.
func (fs *FileSystem) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	path, err := fs.blobPath(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	return f, nil
}

// Delete removes the blob file.
func (fs *FileSystem) Delete(_ context.Context, locator string) error {
	path, err := fs.blobPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return fmt.Errorf("removing file %s: %w", path, err)
	}
	return nil
}

// SizeOf stats the blob file.
func (fs *FileSystem) SizeOf(_ context.Context, locator string) (int64, error) {
	path, err := fs.blobPath(locator)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return 0, fmt.Errorf("checking file %s: %w", path, err)
	}
	return info.Size(), nil
}

// List returns all blobs in the directory. A missing directory is empty.
func (fs *FileSystem) List(_ context.Context) ([]BlobInfo, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", fs.basePath, err)
	}

	var blobs []BlobInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		blobs = append(blobs, BlobInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return blobs, nil
}

// ListPartial returns temp files left behind by interrupted writes.
func (fs *FileSystem) ListPartial(_ context.Context) ([]BlobInfo, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", fs.basePath, err)
	}

	var partial []BlobInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		partial = append(partial, BlobInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return partial, nil
}

// DeletePartial removes a temp file returned by ListPartial.
func (fs *FileSystem) DeletePartial(_ context.Context, name string) error {
	if !strings.HasPrefix(name, tempPrefix) || !validLocator(strings.TrimPrefix(name, ".")) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	path := filepath.Join(fs.basePath, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("removing file %s: %w", path, err)
	}
	return nil
}
