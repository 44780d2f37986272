package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/prompt-portal/internal/llm"
)

// defaultSystemPrompt seeds sessions whose clients don't supply one.
const defaultSystemPrompt = "You are a helpful AI assistant."

type samplingOverrides struct {
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Model       string   `json:"model"`
}

func (o samplingOverrides) options() llm.Options {
	return llm.Options{
		Temperature: o.Temperature,
		TopP:        o.TopP,
		MaxTokens:   o.MaxTokens,
		Model:       o.Model,
	}
}

type chatRequest struct {
	Messages []llm.ChatMessage `json:"messages"`
	samplingOverrides
}

type sessionChatRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
	samplingOverrides
}

func (req *sessionChatRequest) validate() string {
	if req.SessionID == "" {
		return "session_id is required"
	}
	if req.Message == "" {
		return "message is required"
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = defaultSystemPrompt
	}
	return ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.countRequest("chat")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages array is required")
		return
	}

	reply, err := s.client.Generate(r.Context(), req.Messages, req.options())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": reply})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	s.countRequest("chat_stream")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages array is required")
		return
	}

	sse := newSSEWriter(w)
	s.client.GenerateStream(r.Context(), req.Messages, func(chunk string) {
		sse.send(map[string]any{"content": chunk})
	}, req.options())
	sse.send(map[string]any{"done": true})
}

func (s *Server) handleSessionChat(w http.ResponseWriter, r *http.Request) {
	s.countRequest("session_chat")

	var req sessionChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if detail := req.validate(); detail != "" {
		writeError(w, http.StatusBadRequest, detail)
		return
	}

	reply, err := s.sessions.ProcessMessage(r.Context(), req.SessionID, req.SystemPrompt, req.Message, req.options())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"response":   reply,
		"session_id": req.SessionID,
	})
}

func (s *Server) handleSessionChatStream(w http.ResponseWriter, r *http.Request) {
	s.countRequest("session_chat_stream")

	var req sessionChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if detail := req.validate(); detail != "" {
		writeError(w, http.StatusBadRequest, detail)
		return
	}

	sse := newSSEWriter(w)
	s.sessions.ProcessMessageStream(r.Context(), req.SessionID, req.SystemPrompt, req.Message, func(chunk string) {
		sse.send(map[string]any{"content": chunk, "session_id": req.SessionID})
	}, req.options())
	sse.send(map[string]any{"done": true, "session_id": req.SessionID})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	history, ok := s.sessions.History(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   history,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	s.sessions.Clear(sessionID)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": fmt.Sprintf("Session %s cleared", sessionID),
	})
}

func (s *Server) handleLLMHealth(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	text := "ok"
	if !s.client.Available() {
		status = http.StatusServiceUnavailable
		text = "unavailable"
	}

	writeJSON(w, status, map[string]any{
		"status":      text,
		"server_url":  s.cfg.LLMServerURL,
		"temperature": s.cfg.LLMTemperature,
		"max_tokens":  s.cfg.LLMMaxTokens,
	})
}

// sseWriter emits server-sent events, flushing after each one so
// pseudo-streamed chunks reach the client as they are produced.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
