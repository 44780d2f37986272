package app

import (
	"context"

	"github.com/ent0n29/prompt-portal/internal/archive"
	"github.com/ent0n29/prompt-portal/internal/config"
	"github.com/ent0n29/prompt-portal/internal/httpapi"
	"github.com/ent0n29/prompt-portal/internal/llm"
	"github.com/ent0n29/prompt-portal/internal/observability"
	"github.com/ent0n29/prompt-portal/internal/session"
)

// BuildResult is the fully wired object graph, constructed once at
// startup and injected into the serving layer.
type BuildResult struct {
	Config   config.Config
	Metrics  *observability.Metrics
	Archive  archive.Store
	Client   *llm.Client
	Sessions *session.Manager
	API      *httpapi.Server

	// Cleanup should be called on shutdown to release external
	// resources (DB pool, etc).
	Cleanup func() error
}

// Build constructs every component explicitly from configuration.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	client := llm.New(cfg, metrics)
	sessions := session.NewManager(client, cfg.MaxHistoryMessages, store, metrics)
	api := httpapi.New(cfg, client, sessions, metrics)

	return &BuildResult{
		Config:   cfg,
		Metrics:  metrics,
		Archive:  store,
		Client:   client,
		Sessions: sessions,
		API:      api,
		Cleanup:  store.Close,
	}, nil
}
