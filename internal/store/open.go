package store

import (
	"context"
	"fmt"

	"github.com/park285/chessnerd/internal/config"
	"github.com/park285/chessnerd/internal/restdb"
)

// Open builds the repository selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.AppConfig) (Repository, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		repo, _, err := OpenPostgres(ctx, cfg.DatabaseURL)
		return repo, err
	case config.BackendREST:
		return NewREST(restdb.NewClient(cfg.RestURL, cfg.RestAPIKey)), nil
	case config.BackendMemory, "":
		return NewSeededMemory(ctx)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
