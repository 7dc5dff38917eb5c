package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leca/imagehost/internal/model"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const imageColumns = `id, owner, title, description, filename, path, content_type, size, width, height, created_at, updated_at`

// Compile-time check that SQLiteDB implements Database.
var _ Database = (*SQLiteDB)(nil)

// SQLiteDB implements Database backed by SQLite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) an SQLite database at dsn and runs migrations.
// A plain file path is accepted as dsn.
func NewSQLiteDB(dsn string) (*SQLiteDB, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	} else if !strings.Contains(dsn, "busy_timeout") {
		dsn += "&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := migrateSQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) CreateImage(ctx context.Context, img *model.Image) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.Owner, img.Title, img.Description, img.Filename, img.Path,
		img.ContentType, img.Size, img.Width, img.Height,
		formatTime(img.CreatedAt), formatTime(img.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetImage(ctx context.Context, owner, id string) (*model.Image, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+imageColumns+`
		FROM images WHERE owner = ? AND id = ?`,
		owner, id,
	)
	return scanImage(row)
}

func (s *SQLiteDB) ListImages(ctx context.Context, owner string) ([]*model.Image, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+imageColumns+`
		FROM images WHERE owner = ?
		ORDER BY created_at DESC, id DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []*model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLiteDB) UpdateImage(ctx context.Context, owner, id string, patch model.Patch, at time.Time) (*model.Image, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE images
		SET title = COALESCE(?, title),
		    description = COALESCE(?, description),
		    updated_at = ?
		WHERE owner = ? AND id = ?
		RETURNING `+imageColumns,
		nullString(patch.Title), nullString(patch.Description), formatTime(at),
		owner, id,
	)
	return scanImage(row)
}

func (s *SQLiteDB) DeleteImage(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *SQLiteDB) CountImages(ctx context.Context, owner string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE owner = ?`, owner).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

func (s *SQLiteDB) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE filename = ?`, filename).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup filename: %w", err)
	}
	return n > 0, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanImage(row scannable) (*model.Image, error) {
	img := &model.Image{}
	var createdStr, updatedStr string

	err := row.Scan(&img.ID, &img.Owner, &img.Title, &img.Description, &img.Filename, &img.Path,
		&img.ContentType, &img.Size, &img.Width, &img.Height, &createdStr, &updatedStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}

	img.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	img.UpdatedAt, _ = time.Parse(timeLayout, updatedStr)
	return img, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
