package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/prompt-portal/internal/archive"
	"github.com/ent0n29/prompt-portal/internal/llm"
	"github.com/ent0n29/prompt-portal/internal/observability"
)

// Generator produces chat completions for a prepared dialog. It is
// satisfied by *llm.Client and stubbed in tests.
type Generator interface {
	Generate(ctx context.Context, messages []llm.ChatMessage, opts llm.Options) (string, error)
	GenerateStream(ctx context.Context, messages []llm.ChatMessage, onChunk func(string), opts llm.Options)
}

// Session is one keyed conversation record. The dialog always begins
// with exactly one system turn once the session exists.
type Session struct {
	Dialog       []llm.ChatMessage
	CreatedAt    time.Time
	LastAccess   time.Time
	MessageCount int
}

// Manager owns all conversation records, keyed by an opaque
// client-supplied session id. One mutex guards the map and all
// structural mutation; it is never held across a network call.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	client  Generator
	store   archive.Store
	metrics *observability.Metrics

	maxHistoryMessages int
}

// NewManager builds a manager around the given generator. store and
// metrics may be nil. maxHistoryMessages bounds retained non-system
// history to 2x its value.
func NewManager(client Generator, maxHistoryMessages int, store archive.Store, metrics *observability.Metrics) *Manager {
	if maxHistoryMessages <= 0 {
		maxHistoryMessages = 20
	}
	return &Manager{
		sessions:           make(map[string]*Session),
		client:             client,
		store:              store,
		metrics:            metrics,
		maxHistoryMessages: maxHistoryMessages,
	}
}

// ProcessMessage appends the user turn to the session (creating and
// seeding it with systemPrompt on first reference), generates a reply
// over a snapshot of the dialog, and appends the assistant turn. The
// lock is released during generation so concurrent sessions proceed in
// parallel. On generation failure the error propagates unchanged and
// the user turn stays in history.
func (m *Manager) ProcessMessage(ctx context.Context, sessionID, systemPrompt, userMessage string, opts llm.Options) (string, error) {
	dialog := m.beginTurn(sessionID, systemPrompt, userMessage)

	reply, err := m.client.Generate(ctx, dialog, opts)
	if err != nil {
		return "", err
	}

	m.completeTurn(ctx, sessionID, userMessage, reply)
	return reply, nil
}

// ProcessMessageStream is the streaming variant: chunks are forwarded
// to onChunk as received and accumulated so the complete text lands in
// history once streaming finishes. It never returns an error; failures
// arrive as a single error chunk (and are recorded in history as what
// was actually delivered).
func (m *Manager) ProcessMessageStream(ctx context.Context, sessionID, systemPrompt, userMessage string, onChunk func(string), opts llm.Options) {
	dialog := m.beginTurn(sessionID, systemPrompt, userMessage)

	var full strings.Builder
	m.client.GenerateStream(ctx, dialog, func(chunk string) {
		full.WriteString(chunk)
		onChunk(chunk)
	}, opts)

	m.completeTurn(ctx, sessionID, userMessage, full.String())
}

// History returns a snapshot copy of the session's dialog, or false if
// the session has never been referenced (or was cleared).
func (m *Manager) History(sessionID string) ([]llm.ChatMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return snapshot(s.Dialog), true
}

// Clear removes the session. Clearing an absent session is a no-op.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionEvents.WithLabelValues("cleared").Inc()
		m.metrics.ActiveSessions.Set(float64(count))
	}
	log.Debug().Str("session_id", sessionID).Msg("session cleared")
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// beginTurn performs all pre-generation mutation under the lock:
// get-or-create, user append, trim, snapshot.
func (m *Manager) beginTurn(sessionID, systemPrompt, userMessage string) []llm.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getOrCreateLocked(sessionID, systemPrompt)
	s.Dialog = append(s.Dialog, llm.ChatMessage{Role: llm.RoleUser, Content: userMessage})
	s.MessageCount++
	s.LastAccess = time.Now().UTC()
	m.trimLocked(s)

	return snapshot(s.Dialog)
}

// completeTurn re-acquires the lock and appends the assistant turn. If
// the session was cleared while generation ran, the append is silently
// dropped. The exchange is archived either way: the archive records
// what was generated, not what is retained.
func (m *Manager) completeTurn(ctx context.Context, sessionID, userMessage, reply string) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		s.Dialog = append(s.Dialog, llm.ChatMessage{Role: llm.RoleAssistant, Content: reply})
		s.LastAccess = time.Now().UTC()
	}
	m.mu.Unlock()

	m.archiveExchange(ctx, sessionID, userMessage, reply)
}

// getOrCreateLocked reuses an existing session unchanged; the supplied
// systemPrompt only takes effect on first reference (first-writer-wins,
// kept for compatibility with existing clients that re-send prompts).
func (m *Manager) getOrCreateLocked(sessionID, systemPrompt string) *Session {
	if s, ok := m.sessions[sessionID]; ok {
		return s
	}

	now := time.Now().UTC()
	s := &Session{
		Dialog:     []llm.ChatMessage{{Role: llm.RoleSystem, Content: systemPrompt}},
		CreatedAt:  now,
		LastAccess: now,
	}
	m.sessions[sessionID] = s

	if m.metrics != nil {
		m.metrics.SessionEvents.WithLabelValues("created").Inc()
		m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	log.Debug().Str("session_id", sessionID).Msg("session created")
	return s
}

// trimLocked applies the sliding window: keep the leading system turn
// plus only the most recent 2*maxHistoryMessages non-system turns.
func (m *Manager) trimLocked(s *Session) {
	maxKeep := 2 * m.maxHistoryMessages
	if len(s.Dialog)-1 <= maxKeep {
		return
	}

	trimmed := make([]llm.ChatMessage, 0, maxKeep+1)
	trimmed = append(trimmed, s.Dialog[0])
	trimmed = append(trimmed, s.Dialog[len(s.Dialog)-maxKeep:]...)
	s.Dialog = trimmed

	if m.metrics != nil {
		m.metrics.SessionEvents.WithLabelValues("trimmed").Inc()
	}
}

func (m *Manager) archiveExchange(ctx context.Context, sessionID, userMessage, reply string) {
	if m.store == nil {
		return
	}

	now := time.Now().UTC()
	turns := []archive.TurnRecord{
		{SessionID: sessionID, Role: llm.RoleUser, Content: userMessage, CreatedAt: now},
		{SessionID: sessionID, Role: llm.RoleAssistant, Content: reply, CreatedAt: now},
	}
	for _, turn := range turns {
		if err := m.store.SaveTurn(ctx, turn); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("transcript archive failed")
			return
		}
	}
}

func snapshot(dialog []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(dialog))
	copy(out, dialog)
	return out
}
