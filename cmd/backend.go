package cmd

import (
	"context"
	"fmt"

	"databinding/core/config"
	"databinding/core/database"
	"databinding/core/storage"
	"databinding/feature/grid"

	"go.uber.org/zap"
)

// openBackend builds the grid backend selected by the configuration and
// checks that it is reachable.
func openBackend(ctx context.Context, cfg *config.Config, logg *zap.Logger) (grid.Backend, error) {
	var backend grid.Backend

	switch cfg.Grid.Source {
	case grid.SourceMemory:
		backend = grid.NewMemoryBackend(grid.GenerateRows(cfg.Grid.Rows))
		logg.Info("Serving generated rows", zap.Int("rows", cfg.Grid.Rows))

	case grid.SourceSQL:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		src, err := database.NewTableSource(db, cfg.Grid.Table)
		if err != nil {
			return nil, err
		}
		backend = grid.NewTableBackend(src)
		logg.Info("Serving table",
			zap.String("driver", cfg.Database.Driver),
			zap.String("table", src.Table()),
			zap.String("primary_key", src.PrimaryKey()))

	case grid.SourceStorage:
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		backend = grid.NewObjectBackend(storage.NewObjectSource(client, cfg.Storage.Bucket, cfg.Storage.Prefix))
		logg.Info("Serving object listing",
			zap.String("bucket", cfg.Storage.Bucket),
			zap.String("prefix", cfg.Storage.Prefix))

	default:
		return nil, fmt.Errorf("unsupported grid source %q", cfg.Grid.Source)
	}

	if err := backend.Check(ctx); err != nil {
		return nil, fmt.Errorf("%s backend unavailable: %w", backend.Name(), err)
	}
	return backend, nil
}
