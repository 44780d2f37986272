package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/prompt-portal/internal/archive"
	"github.com/ent0n29/prompt-portal/internal/config"
	"github.com/ent0n29/prompt-portal/internal/llm"
	"github.com/ent0n29/prompt-portal/internal/observability"
	"github.com/ent0n29/prompt-portal/internal/session"
)

// Process-wide shared client and session manager. InitLLMService wires
// them with explicit configuration; absent that call, the accessors
// fall back to default configuration on first use. Construct once,
// reuse everywhere after.
var (
	serviceMu       sync.Mutex
	sharedClient    *llm.Client
	sharedSessions  *session.Manager
	serviceInitOnce bool
)

// InitLLMService constructs the shared inference client and session
// manager with the given configuration before any lazy path runs.
// Calling it again replaces the shared instances.
func InitLLMService(ctx context.Context, cfg config.Config) error {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	client := llm.New(cfg, metrics)
	sessions := session.NewManager(client, cfg.MaxHistoryMessages, store, metrics)

	serviceMu.Lock()
	sharedClient = client
	sharedSessions = sessions
	serviceInitOnce = true
	serviceMu.Unlock()

	log.Info().Str("server_url", cfg.LLMServerURL).Msg("llm service initialized")
	return nil
}

// LLMClient returns the shared inference client, constructing it with
// default configuration on first use.
func LLMClient() *llm.Client {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	ensureDefaultLocked()
	return sharedClient
}

// SessionManager returns the shared conversation store, constructing it
// with default configuration on first use.
func SessionManager() *session.Manager {
	serviceMu.Lock()
	defer serviceMu.Unlock()
	ensureDefaultLocked()
	return sharedSessions
}

// ensureDefaultLocked builds the default-config instances. The default
// archive is in-memory, so no construction step can fail here.
func ensureDefaultLocked() {
	if serviceInitOnce {
		return
	}
	cfg := config.Default()
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	sharedClient = llm.New(cfg, metrics)
	sharedSessions = session.NewManager(sharedClient, cfg.MaxHistoryMessages, archive.NewInMemoryStore(), metrics)
	serviceInitOnce = true
	log.Info().Str("server_url", cfg.LLMServerURL).Msg("llm service initialized with default config")
}
