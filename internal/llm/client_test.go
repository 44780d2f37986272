package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/prompt-portal/internal/config"
)

func completionJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

// recordingHandler answers the startup probe and captures the body of
// every subsequent generation request.
type recordingHandler struct {
	mu       sync.Mutex
	reply    string
	requests []map[string]any
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	// The probe asks for a single token; real generations carry the
	// configured budget.
	if mt, ok := body["max_tokens"].(float64); !ok || int(mt) != 1 {
		h.mu.Lock()
		h.requests = append(h.requests, body)
		h.mu.Unlock()
	}
	w.Write([]byte(completionJSON(h.reply)))
}

func (h *recordingHandler) lastRequest(t *testing.T) map[string]any {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		t.Fatalf("no generation request recorded")
	}
	return h.requests[len(h.requests)-1]
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.LLMServerURL = ts.URL
	cfg.LLMTimeout = 5 * time.Second
	cfg.LLMProbeTimeout = 2 * time.Second
	return New(cfg, nil), ts
}

func TestGenerateSendsConfiguredDefaults(t *testing.T) {
	h := &recordingHandler{reply: "Hi there!"}
	c, _ := newTestClient(t, h)

	if !c.Available() {
		t.Fatalf("Available() = false, want true after successful probe")
	}

	reply, err := c.Generate(context.Background(), []ChatMessage{
		{Role: RoleSystem, Content: "You are a helpful AI assistant."},
		{Role: RoleUser, Content: "Hello"},
	}, Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply != "Hi there!" {
		t.Fatalf("reply = %q, want %q", reply, "Hi there!")
	}

	req := h.lastRequest(t)
	if req["model"] != "default" {
		t.Fatalf("model = %v, want default", req["model"])
	}
	if req["temperature"] != 0.6 || req["top_p"] != 0.9 {
		t.Fatalf("sampling = %v/%v, want 0.6/0.9", req["temperature"], req["top_p"])
	}
	if req["max_tokens"] != float64(4096) {
		t.Fatalf("max_tokens = %v, want 4096", req["max_tokens"])
	}
	extra, ok := req["extra_body"].(map[string]any)
	if !ok {
		t.Fatalf("extra_body missing from request: %v", req)
	}
	if extra["enable_thinking"] != false {
		t.Fatalf("enable_thinking = %v, want false", extra["enable_thinking"])
	}
	msgs, ok := req["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v, want 2 entries", req["messages"])
	}
}

func TestGenerateAppliesOverrides(t *testing.T) {
	h := &recordingHandler{reply: "ok"}
	c, _ := newTestClient(t, h)

	_, err := c.Generate(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, Options{
		Temperature: Float64(0.2),
		TopP:        Float64(0.5),
		MaxTokens:   Int(64),
		Model:       "llama3",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req := h.lastRequest(t)
	if req["model"] != "llama3" {
		t.Fatalf("model = %v, want llama3", req["model"])
	}
	if req["temperature"] != 0.2 || req["top_p"] != 0.5 || req["max_tokens"] != float64(64) {
		t.Fatalf("overrides not applied: %v", req)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	probed := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !probed {
			probed = true
			w.Write([]byte(completionJSON("probe")))
			return
		}
		w.Write([]byte(`{"choices":[]}`))
	}))

	_, err := c.Generate(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, Options{})
	if err == nil {
		t.Fatalf("Generate() expected error for empty choices")
	}
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
}

func TestGenerateInvalidJSON(t *testing.T) {
	probed := false
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !probed {
			probed = true
			w.Write([]byte(completionJSON("probe")))
			return
		}
		w.Write([]byte("definitely not json"))
	}))

	_, err := c.Generate(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, Options{})
	if err == nil {
		t.Fatalf("Generate() expected error for invalid JSON")
	}
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
}

func TestGenerateWrapsTransportError(t *testing.T) {
	h := &recordingHandler{reply: "ok"}
	c, ts := newTestClient(t, h)
	ts.Close()

	_, err := c.Generate(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, Options{})
	if err == nil {
		t.Fatalf("Generate() expected error after server shutdown")
	}
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("error = %T, want *GenerationError", err)
	}
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("GenerationError should wrap *TransportError, got %v", err)
	}
}

func TestGenerateStreamMatchesGenerate(t *testing.T) {
	const text = "abcdefghijklmnopqrstuvwxy" // 25 runes: chunks of 10, 10, 5
	h := &recordingHandler{reply: text}
	c, _ := newTestClient(t, h)

	want, err := c.Generate(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var chunks []string
	c.GenerateStream(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, func(chunk string) {
		chunks = append(chunks, chunk)
	}, Options{})

	if len(chunks) != 3 {
		t.Fatalf("chunk count = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 10 || len(chunks[1]) != 10 || len(chunks[2]) != 5 {
		t.Fatalf("chunk sizes = %d/%d/%d, want 10/10/5", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if got := strings.Join(chunks, ""); got != want {
		t.Fatalf("concatenated chunks = %q, want %q", got, want)
	}
}

func TestGenerateStreamDeliversErrorChunk(t *testing.T) {
	h := &recordingHandler{reply: "ok"}
	c, ts := newTestClient(t, h)
	ts.Close()

	var chunks []string
	c.GenerateStream(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, func(chunk string) {
		chunks = append(chunks, chunk)
	}, Options{})

	if len(chunks) != 1 {
		t.Fatalf("chunk count = %d, want exactly 1 error chunk", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "Error: ") {
		t.Fatalf("chunk = %q, want Error: prefix", chunks[0])
	}
}

func TestGenerateStreamEmptyCompletion(t *testing.T) {
	h := &recordingHandler{reply: ""}
	c, _ := newTestClient(t, h)

	var chunks []string
	c.GenerateStream(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, func(chunk string) {
		chunks = append(chunks, chunk)
	}, Options{})

	if len(chunks) != 1 || chunks[0] != "" {
		t.Fatalf("chunks = %q, want one empty chunk", chunks)
	}
}

func TestAvailabilityFalseWhenProbeFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	cfg := config.Default()
	cfg.LLMServerURL = ts.URL
	cfg.LLMProbeTimeout = time.Second
	c := New(cfg, nil)
	if c.Available() {
		t.Fatalf("Available() = true, want false for unreachable server")
	}
}
