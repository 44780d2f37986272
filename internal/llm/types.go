package llm

// Conversation roles understood by OpenAI-compatible chat endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one role-tagged turn of a conversation. Instances are
// treated as immutable once created.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-call sampling overrides. Nil fields fall back to
// the client defaults; an empty Model falls back to the default model.
type Options struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Model       string
}

// Float64 returns a pointer to v, for building Options literals.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for building Options literals.
func Int(v int) *int { return &v }

// chatCompletionRequest is the wire shape sent to /v1/chat/completions.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	ExtraBody   *extraBody    `json:"extra_body,omitempty"`
}

// extraBody carries llama.cpp/vLLM vendor parameters. enable_thinking
// toggles the reasoning trace some models prepend to their answer.
type extraBody struct {
	EnableThinking bool `json:"enable_thinking"`
}

// probeRequest is the minimal 1-token completion used by the startup
// availability check.
type probeRequest struct {
	Model     string        `json:"model"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

// chatCompletionResponse mirrors the subset of the response we read:
// only the first choice's message content is used.
type chatCompletionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}
