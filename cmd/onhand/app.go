package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/onhand/internal/config"
	"github.com/JonMunkholm/onhand/internal/core"
	"github.com/JonMunkholm/onhand/internal/logging"
	"github.com/JonMunkholm/onhand/internal/store/mysql"
	"github.com/JonMunkholm/onhand/internal/store/postgres"
	"github.com/JonMunkholm/onhand/internal/transport"
)

// stagingDB is implemented by both staging stores.
type stagingDB interface {
	core.StagingStore
	core.RunRecorder
	Close() error
}

// app holds everything a command needs, built once from configuration.
type app struct {
	cfg      *config.Config
	logFile  *logging.DailyFile
	db       stagingDB
	registry *prometheus.Registry
	history  *core.MemoryHistory
	pipeline *core.Pipeline
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return nil, err
	}

	logFile, err := logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Dir:        cfg.Logging.Dir,
		FilePrefix: cfg.Logging.FilePrefix,
	})
	if err != nil {
		slog.Error("failed to open run log", "dir", cfg.Logging.Dir, "error", err)
		return nil, err
	}

	slog.Info("configuration loaded",
		"source", cfg.Source.RemoteDescription(),
		"local_path", cfg.Local.Path,
		"db_driver", cfg.Database.Driver,
		"staging_table", cfg.Database.StagingTable,
		"invalid_quantity", cfg.Load.InvalidQuantity,
	)

	a := &app{cfg: cfg, logFile: logFile}

	db, err := connectStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "driver", cfg.Database.Driver, "error", err)
		a.Close()
		return nil, err
	}
	a.db = db

	source, err := transport.FromConfig(ctx, cfg.Source)
	if err != nil {
		slog.Error("failed to configure source", "error", err)
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.history = core.NewMemoryHistory(core.DefaultHistorySize)
	recorders := []core.RunRecorder{a.history}
	if cfg.Database.RecordRuns {
		recorders = append(recorders, a.db)
	}

	a.pipeline = core.NewPipeline(cfg, core.PipelineDeps{
		Source:    source,
		Store:     a.db,
		Recorders: recorders,
		Metrics:   core.NewMetrics(a.registry),
	})

	return a, nil
}

func connectStore(ctx context.Context, cfg config.DatabaseConfig) (stagingDB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		store, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "mysql":
		store, err := mysql.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Close releases the database and flushes the run log.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
