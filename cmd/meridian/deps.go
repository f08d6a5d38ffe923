package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nvoss/meridian/internal/config"
	"github.com/nvoss/meridian/internal/ingest"
	"github.com/nvoss/meridian/internal/projectstore"
	"github.com/nvoss/meridian/internal/query"
	"github.com/nvoss/meridian/internal/registry"
	"github.com/nvoss/meridian/internal/session"
	"github.com/nvoss/meridian/internal/stream"
	"github.com/nvoss/meridian/internal/transport"
)

// app bundles the wired client stack a command needs.
type app struct {
	cfg      config.Config
	client   *transport.Client
	orch     *query.Orchestrator
	registry *registry.Registry
	store    projectstore.Store
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// newApp builds the full stack from configuration. onProgress, when
// non-nil, receives ingestion progress percentages.
var newApp = func(onProgress func(percent int)) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	client := transport.New(cfg.Backend.BaseURL, cfg.Backend.APIToken, transport.WithLogger(logger))
	reg := registry.New(client, logger)

	opts := []ingest.Option{
		ingest.WithRegistryRefresh(reg.Refresh),
		ingest.WithLogger(logger),
	}
	if onProgress != nil {
		opts = append(opts, ingest.WithProgress(onProgress))
	}
	if cfg.Ingest.Concurrency > 1 {
		opts = append(opts, ingest.WithConcurrency(cfg.Ingest.Concurrency))
	}
	pipeline := ingest.New(client, opts...)

	orch := query.New(client, session.New(), pipeline, stream.NewSSEFactory(client, logger), logger)

	var store projectstore.Store
	if cfg.Storage.Mode == "remote" {
		store = projectstore.NewREST(client)
	} else {
		store, err = projectstore.OpenSQLite(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening project store: %w", err)
		}
	}

	return &app{
		cfg:      cfg,
		client:   client,
		orch:     orch,
		registry: reg,
		store:    store,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// readFiles loads the --file arguments into attachment payloads.
func readFiles(paths []string) ([]ingest.File, error) {
	files := make([]ingest.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading attachment %s: %w", p, err)
		}
		files = append(files, ingest.File{Name: baseName(p), Data: data})
	}
	return files, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
