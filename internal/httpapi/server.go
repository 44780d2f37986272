package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/prompt-portal/internal/config"
	"github.com/ent0n29/prompt-portal/internal/llm"
	"github.com/ent0n29/prompt-portal/internal/observability"
	"github.com/ent0n29/prompt-portal/internal/session"
)

// Generator is the inference surface the API needs; *llm.Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (string, error)
	GenerateStream(ctx context.Context, messages []llm.ChatMessage, onChunk func(string), opts llm.Options)
	Available() bool
}

type Server struct {
	cfg      config.Config
	client   Generator
	sessions *session.Manager
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, client Generator, sessions *session.Manager, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// omit Origin and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api/llm", func(r chi.Router) {
		r.Get("/health", s.handleLLMHealth)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/stream", s.handleChatStream)
		r.Post("/chat/session", s.handleSessionChat)
		r.Post("/chat/session/stream", s.handleSessionChatStream)
		r.Get("/chat/session/{id}/history", s.handleSessionHistory)
		r.Delete("/chat/session/{id}", s.handleClearSession)
		r.Get("/chat/ws", s.handleChatWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) countRequest(route string) {
	if s.metrics != nil {
		s.metrics.ChatRequests.WithLabelValues(route).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
