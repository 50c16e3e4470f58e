package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hiroki-koketsu/task-assignment/internal/config"
	"github.com/hiroki-koketsu/task-assignment/internal/repository"
	"github.com/hiroki-koketsu/task-assignment/internal/telemetry"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    *config.Config
	logger *telemetry.LocalLogger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Task assignment HTTP service",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Serve the API with the configured storage driver
  server

  # Mint a bearer token for a stored user
  server token --user 3f1c...
`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = telemetry.NewLocalLogger(cfg.LogFile, slog.LevelInfo)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.logger.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	cmd.AddCommand(newTokenCmd(a))
	return cmd
}

// openStore connects the configured storage driver behind a circuit breaker.
func (a *app) openStore(ctx context.Context, logger *slog.Logger) (*repository.Store, error) {
	var (
		store *repository.Store
		err   error
	)
	switch a.cfg.StorageDriver {
	case config.DriverMemory:
		store = repository.NewMemoryStore()
	case config.DriverSQLite:
		store, err = repository.OpenSQLite(ctx, a.cfg.SQLitePath)
	case config.DriverMongo:
		store, err = repository.OpenMongo(ctx, a.cfg.MongoURI, a.cfg.MongoDatabase)
	default:
		err = fmt.Errorf("unknown storage driver %q", a.cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("storage opened", slog.String("driver", a.cfg.StorageDriver))
	return repository.WithBreaker(store, repository.BreakerSettings{
		Name:        a.cfg.StorageDriver,
		MaxFailures: a.cfg.BreakerMaxFailures,
		Timeout:     a.cfg.BreakerTimeout,
		Logger:      logger,
	}), nil
}
