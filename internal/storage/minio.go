package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Compile-time check that Minio implements Storage.
var _ Storage = (*Minio)(nil)

// Minio implements Storage on any S3-compatible bucket (MinIO, AWS S3, ...).
// Objects are stored at the bucket root under their locator.
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio creates a MinIO client and ensures the bucket exists.
func NewMinio(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Minio, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		slog.Info("created storage bucket", "bucket", bucket)
	}

	return &Minio{client: client, bucket: bucket}, nil
}

// Write uploads data as a new object. Readers that know their length are sent
// in a single PUT; anything else falls back to a multipart stream, which
// buffers whole parts in memory.
func (m *Minio) Write(ctx context.Context, data io.Reader, ext string) (string, error) {
	locator := uuid.New().String() + ext
	size, err := readerSize(data)
	if err != nil {
		return "", fmt.Errorf("measure object %q: %w", locator, err)
	}
	_, err = m.client.PutObject(ctx, m.bucket, locator, data, size, minio.PutObjectOptions{
		ContentType: contentTypeForExt(ext),
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", locator, err)
	}
	return locator, nil
}

// Open returns a reader for the object. The object is stat'ed first so a
// missing key surfaces as ErrNotFound here rather than on first Read.
func (m *Minio) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if _, err := m.SizeOf(ctx, locator); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", locator, err)
	}
	return obj, nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report ErrNotFound.
func (m *Minio) Delete(ctx context.Context, locator string) error {
	if _, err := m.SizeOf(ctx, locator); err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, locator, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", locator, err)
	}
	return nil
}

// SizeOf returns the object size from its metadata.
func (m *Minio) SizeOf(ctx context.Context, locator string) (int64, error) {
	if !validLocator(locator) {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, locator)
	}
	info, err := m.client.StatObject(ctx, m.bucket, locator, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return 0, fmt.Errorf("stat object %q: %w", locator, err)
	}
	return info.Size, nil
}

// List walks every object in the bucket.
func (m *Minio) List(ctx context.Context) ([]BlobInfo, error) {
	var blobs []BlobInfo
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		blobs = append(blobs, BlobInfo{Name: obj.Key, Size: obj.Size, ModTime: obj.LastModified})
	}
	return blobs, nil
}

func contentTypeForExt(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// readerSize returns the number of bytes left in r, or -1 when r cannot tell.
func readerSize(r io.Reader) (int64, error) {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len()), nil
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if _, err := v.Seek(cur, io.SeekStart); err != nil {
			return 0, err
		}
		return end - cur, nil
	}
	return -1, nil
}
