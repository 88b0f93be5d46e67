package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/chessnerd/internal/config"
	"github.com/park285/chessnerd/internal/obslog"
	"github.com/park285/chessnerd/internal/store"
)

func migrateCmd(envFiles *[]string) *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema and optionally seed lessons",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFiles)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg, seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "upsert the bundled lesson catalog")
	return cmd
}

func migrate(ctx context.Context, cfg *config.AppConfig, seed bool) error {
	var repo store.Repository
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		r, db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		if err := store.Migrate(ctx, db); err != nil {
			return err
		}
		obslog.L().Info("schema_applied")
		repo = r
	case config.BackendREST:
		r, err := store.Open(ctx, cfg)
		if err != nil {
			return err
		}
		repo = r
	default:
		return errors.New("migrate needs STORE_BACKEND=postgres or rest")
	}
	if !seed {
		return nil
	}
	n, err := store.Seed(ctx, repo)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	obslog.L().Info("lessons_seeded", zap.Int("count", n))
	return nil
}
