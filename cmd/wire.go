package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"trafficcam-capture/internal/auth"
	"trafficcam-capture/internal/capture"
	"trafficcam-capture/internal/catalog"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/internal/hls"
	"trafficcam-capture/internal/storage"
)

// openMetadata connects to PostgreSQL when database.url is set and falls back to an
// in-memory store otherwise.
func openMetadata(ctx context.Context, cfg *config.Config) (storage.MetadataStore, error) {
	if cfg.Database.URL == "" {
		slog.Warn("database.url not set, capture metadata is kept in memory only")
		return storage.NewMemoryStore(), nil
	}
	return storage.OpenPostgres(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
}

// loadCatalog reads the camera catalog. A missing file yields an empty catalog so the
// direct strategy still works from feed cameras.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	c, err := catalog.Load(cfg.Catalog.Path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("camera catalog not found, using feed cameras only", "path", cfg.Catalog.Path)
		return catalog.New(nil), nil
	}
	if err != nil {
		return nil, err
	}
	slog.Info("camera catalog loaded", "path", cfg.Catalog.Path, "cameras", c.Len())
	return c, nil
}

// cameraChain is the association order: feed cameras, keyed lookup, relevance search.
func cameraChain(cfg *config.Config, c *catalog.Catalog) catalog.Chain {
	return catalog.Chain{
		Strategies: []catalog.Strategy{
			catalog.Direct{Catalog: c},
			catalog.NewLookup(c, cfg.Catalog.Lookup),
			catalog.Search{Catalog: c},
		},
		Limit: cfg.Capture.MaxCamerasPerIncident,
	}
}

// newOrchestrator builds the capture pipeline on top of meta. The caller owns Close.
func newOrchestrator(cfg *config.Config, meta storage.MetadataStore, rec capture.Recorder) (*capture.Orchestrator, error) {
	artifacts, err := storage.NewLocalStore(cfg.Storage.ArtifactDir, cfg.Storage.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	return capture.New(capture.Deps{
		Auth:      auth.NewClient(cfg.Auth, cfg.Credentials),
		Playlists: hls.NewResolver(cfg.Stream, cfg.Credentials),
		Segments:  hls.NewDownloader(cfg.Stream, cfg.Credentials),
		Artifacts: artifacts,
		Metadata:  meta,
		Recorder:  rec,
	}, capture.Options{
		Workers:            cfg.Capture.Workers,
		SegmentLimit:       cfg.Capture.SegmentLimit(),
		SegmentConcurrency: cfg.Stream.SegmentConcurrency,
	}), nil
}
