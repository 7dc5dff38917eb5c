package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leca/imagehost/internal/model"
)

// Compile-time check that PostgresDB implements Database.
var _ Database = (*PostgresDB)(nil)

// PostgresDB implements Database on a pgx connection pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB migrates the schema, then creates and validates a pool.
func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	if err := MigratePostgres(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	slog.Info("connected to database", "driver", "postgres")
	return &PostgresDB{pool: pool}, nil
}

// Close closes the pool.
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresDB) CreateImage(ctx context.Context, img *model.Image) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		img.ID, img.Owner, img.Title, img.Description, img.Filename, img.Path,
		img.ContentType, img.Size, img.Width, img.Height,
		img.CreatedAt.UTC(), img.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (p *PostgresDB) GetImage(ctx context.Context, owner, id string) (*model.Image, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+pgImageColumns+`
		FROM images WHERE owner = $1 AND id::text = $2`,
		owner, id,
	)
	return scanPgImage(row)
}

func (p *PostgresDB) ListImages(ctx context.Context, owner string) ([]*model.Image, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+pgImageColumns+`
		FROM images WHERE owner = $1
		ORDER BY created_at DESC, id DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []*model.Image
	for rows.Next() {
		img, err := scanPgImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (p *PostgresDB) UpdateImage(ctx context.Context, owner, id string, patch model.Patch, at time.Time) (*model.Image, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE images
		SET title = COALESCE($1, title),
		    description = COALESCE($2, description),
		    updated_at = $3
		WHERE owner = $4 AND id::text = $5
		RETURNING `+pgImageColumns,
		patch.Title, patch.Description, at.UTC(), owner, id,
	)
	return scanPgImage(row)
}

func (p *PostgresDB) DeleteImage(ctx context.Context, owner, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM images WHERE owner = $1 AND id::text = $2`, owner, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) CountImages(ctx context.Context, owner string) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images WHERE owner = $1`, owner).Scan(&count); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

func (p *PostgresDB) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE filename = $1)`, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup filename: %w", err)
	}
	return exists, nil
}

// pgImageColumns renders the uuid id as text so it scans into a string.
// Ids are compared as text too, so a malformed id is simply not found
// instead of failing the uuid cast.
const pgImageColumns = `id::text, owner, title, description, filename, path, content_type, size, width, height, created_at, updated_at`

func scanPgImage(row pgx.Row) (*model.Image, error) {
	img := &model.Image{}
	err := row.Scan(&img.ID, &img.Owner, &img.Title, &img.Description, &img.Filename, &img.Path,
		&img.ContentType, &img.Size, &img.Width, &img.Height, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}
	return img, nil
}
