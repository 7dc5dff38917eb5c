package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leca/imagehost/internal/config"
	"github.com/leca/imagehost/internal/database"
	"github.com/leca/imagehost/internal/imageproc"
	"github.com/leca/imagehost/internal/images"
	"github.com/leca/imagehost/internal/storage"
)

// openDatabase opens the configured metadata store, applying migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (database.Database, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return database.NewSQLiteDB(cfg.DBPath)
	case config.DriverPostgres:
		return database.NewPostgresDB(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// openStorage opens the configured permanent blob store.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.BackendFilesystem:
		return storage.NewFileSystem(cfg.StoragePath), nil
	case config.BackendMinio:
		return storage.NewMinio(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newService wires the image service. The caller closes the returned database.
func newService(ctx context.Context, cfg *config.Config) (*images.Service, database.Database, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	svc := images.New(db, storage.NewFileSystem(cfg.StagingPath), store,
		images.WithLogger(slog.Default()),
		images.WithNormalizeOptions(imageproc.Options{
			MaxDimension: cfg.MaxDimension,
			Quality:      cfg.JPEGQuality,
			MaxPixels:    cfg.MaxPixels,
		}),
	)
	return svc, db, nil
}
