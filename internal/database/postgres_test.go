package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leca/imagehost/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPostgres connects to IMAGEHOST_TEST_DATABASE_URL, skipping the test
// when it is not set. Every test uses fresh owners, so a shared database is fine.
func newTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	url := os.Getenv("IMAGEHOST_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("IMAGEHOST_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := NewPostgresDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newPgImage(owner string, created time.Time) *model.Image {
	return newImage(uuid.New().String(), owner, created.UTC().Truncate(time.Microsecond))
}

func freshOwner() string {
	return "owner-" + uuid.New().String()
}

func TestPostgresCreateAndGetImage(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()
	owner, other := freshOwner(), freshOwner()

	img := newPgImage(owner, time.Now())
	img.Title = "Sunset"
	require.NoError(t, db.CreateImage(ctx, img))

	got, err := db.GetImage(ctx, owner, img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.ID, got.ID)
	assert.Equal(t, "Sunset", got.Title)
	assert.Equal(t, img.Size, got.Size)
	assert.True(t, got.CreatedAt.Equal(img.CreatedAt))

	// Another owner, a missing uuid and a malformed id all look the same.
	for _, id := range []string{img.ID, uuid.New().String(), "not-a-uuid"} {
		_, err = db.GetImage(ctx, other, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	_, err = db.GetImage(ctx, owner, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresListImagesNewestFirst(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()
	owner, other := freshOwner(), freshOwner()

	base := time.Now().Add(-time.Hour)
	oldest := newPgImage(owner, base)
	newest := newPgImage(owner, base.Add(2*time.Minute))
	middle := newPgImage(owner, base.Add(time.Minute))
	for _, img := range []*model.Image{oldest, newest, middle, newPgImage(other, base)} {
		require.NoError(t, db.CreateImage(ctx, img))
	}

	images, err := db.ListImages(ctx, owner)
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, newest.ID, images[0].ID)
	assert.Equal(t, middle.ID, images[1].ID)
	assert.Equal(t, oldest.ID, images[2].ID)
}

func TestPostgresUpdateImage(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()
	owner, other := freshOwner(), freshOwner()

	img := newPgImage(owner, time.Now().Add(-time.Hour))
	img.Title = "old"
	img.Description = "keep me"
	require.NoError(t, db.CreateImage(ctx, img))

	// A nil field is left as it is.
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := db.UpdateImage(ctx, owner, img.ID, model.Patch{Title: strPtr("new")}, at)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, "keep me", got.Description)
	assert.True(t, got.UpdatedAt.Equal(at))

	got, err = db.UpdateImage(ctx, owner, img.ID, model.Patch{Description: strPtr("")}, at)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, "", got.Description)

	for _, id := range []string{img.ID, uuid.New().String(), "not-a-uuid"} {
		_, err = db.UpdateImage(ctx, other, id, model.Patch{Title: strPtr("mine now")}, at)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}

	got, err = db.GetImage(ctx, owner, img.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
}

func TestPostgresDeleteImage(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()
	owner, other := freshOwner(), freshOwner()

	img := newPgImage(owner, time.Now())
	require.NoError(t, db.CreateImage(ctx, img))

	assert.ErrorIs(t, db.DeleteImage(ctx, other, img.ID), ErrNotFound)
	assert.ErrorIs(t, db.DeleteImage(ctx, owner, "not-a-uuid"), ErrNotFound)

	require.NoError(t, db.DeleteImage(ctx, owner, img.ID))
	assert.ErrorIs(t, db.DeleteImage(ctx, owner, img.ID), ErrNotFound)

	_, err := db.GetImage(ctx, owner, img.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresCountImagesAndFilenameExists(t *testing.T) {
	db := newTestPostgres(t)
	ctx := context.Background()
	owner := freshOwner()

	a := newPgImage(owner, time.Now())
	b := newPgImage(owner, time.Now())
	require.NoError(t, db.CreateImage(ctx, a))
	require.NoError(t, db.CreateImage(ctx, b))

	n, err := db.CountImages(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	exists, err := db.FilenameExists(ctx, a.Filename)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.FilenameExists(ctx, uuid.New().String()+".jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}
