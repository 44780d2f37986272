package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/prompt-portal/internal/config"
	"github.com/ent0n29/prompt-portal/internal/observability"
)

const completionsPath = "/v1/chat/completions"

// Pseudo-streaming re-segments a complete response into fixed slices
// with a short pause between deliveries.
const (
	streamChunkRunes = 10
	streamChunkDelay = 10 * time.Millisecond
)

// Client calls an OpenAI-compatible chat-completion endpoint. It works
// against llama.cpp server, vLLM, and other compatible backends. The
// client holds no mutable state after construction beyond the
// availability flag set by the startup probe.
type Client struct {
	serverURL    string
	timeout      time.Duration
	probeTimeout time.Duration

	defaultTemperature float64
	defaultTopP        float64
	defaultMaxTokens   int
	defaultModel       string
	skipThinking       bool

	available bool
	transport *transport
	metrics   *observability.Metrics
}

// New builds a client from configuration and probes the endpoint with a
// minimal 1-token completion. A failed probe only clears Available();
// it never fails construction.
func New(cfg config.Config, metrics *observability.Metrics) *Client {
	c := &Client{
		serverURL:          cfg.LLMServerURL,
		timeout:            cfg.LLMTimeout,
		probeTimeout:       cfg.LLMProbeTimeout,
		defaultTemperature: cfg.LLMTemperature,
		defaultTopP:        cfg.LLMTopP,
		defaultMaxTokens:   cfg.LLMMaxTokens,
		defaultModel:       cfg.LLMModel,
		skipThinking:       cfg.LLMSkipThinking,
		transport:          newTransport(),
		metrics:            metrics,
	}
	c.available = c.testConnection()
	return c
}

// Available reports whether the startup probe reached the server.
func (c *Client) Available() bool { return c.available }

// ServerURL returns the configured endpoint base.
func (c *Client) ServerURL() string { return c.serverURL }

// DefaultTemperature returns the configured sampling temperature.
func (c *Client) DefaultTemperature() float64 { return c.defaultTemperature }

// DefaultMaxTokens returns the configured completion budget.
func (c *Client) DefaultMaxTokens() int { return c.defaultMaxTokens }

// Generate runs one chat completion over the supplied turns and returns
// the first choice's content. Failures are always a *GenerationError.
func (c *Client) Generate(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	req := chatCompletionRequest{
		Model:       c.defaultModel,
		Messages:    messages,
		Temperature: c.defaultTemperature,
		TopP:        c.defaultTopP,
		MaxTokens:   c.defaultMaxTokens,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if c.skipThinking {
		req.ExtraBody = &extraBody{EnableThinking: false}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", &GenerationError{Msg: "marshal chat completion request", Err: err}
	}

	start := time.Now()
	raw, err := c.transport.postJSON(ctx, c.serverURL+completionsPath, payload, c.timeout)
	if err != nil {
		c.countError(err)
		return "", &GenerationError{Msg: "chat completion request failed", Err: err}
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.countStage("parse")
		return "", &GenerationError{Msg: "invalid JSON from inference server", Err: err}
	}
	if len(parsed.Choices) == 0 {
		c.countStage("empty")
		return "", &GenerationError{Msg: "inference server returned no choices"}
	}

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.ObserveGenerationLatency(elapsed)
	}
	log.Info().
		Int64("latency_ms", elapsed.Milliseconds()).
		Str("model", req.Model).
		Msg("llm generation complete")

	return parsed.Choices[0].Message.Content, nil
}

// GenerateStream emulates streaming: it generates the full completion,
// then delivers it to onChunk in fixed-size rune slices with a short
// pause between them. On failure onChunk receives exactly one
// "Error: ..." payload. Every call invokes onChunk at least once; an
// empty completion still yields one empty chunk.
func (c *Client) GenerateStream(ctx context.Context, messages []ChatMessage, onChunk func(string), opts Options) {
	text, err := c.Generate(ctx, messages, opts)
	if err != nil {
		onChunk("Error: " + err.Error())
		return
	}

	runes := []rune(text)
	if len(runes) == 0 {
		onChunk("")
		return
	}
	for i := 0; i < len(runes); i += streamChunkRunes {
		end := i + streamChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		onChunk(string(runes[i:end]))
		if end < len(runes) {
			time.Sleep(streamChunkDelay)
		}
	}
}

// testConnection issues a minimal completion with the short probe
// timeout. Any failure degrades to false and is never propagated.
func (c *Client) testConnection() bool {
	probe := probeRequest{
		Model:     c.defaultModel,
		Messages:  []ChatMessage{{Role: RoleSystem, Content: "test"}},
		MaxTokens: 1,
	}
	payload, err := json.Marshal(probe)
	if err != nil {
		return false
	}

	raw, err := c.transport.postJSON(context.Background(), c.serverURL+completionsPath, payload, c.probeTimeout)
	if err != nil {
		log.Warn().Err(err).Str("server_url", c.serverURL).Msg("llm connection test failed")
		return false
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Choices) == 0 {
		log.Warn().Str("server_url", c.serverURL).Msg("llm connection test returned unexpected body")
		return false
	}

	log.Info().Str("server_url", c.serverURL).Msg("llm connection test successful")
	return true
}

func (c *Client) countError(err error) {
	var te *TransportError
	if errors.As(err, &te) {
		c.countStage("transport")
		return
	}
	c.countStage("other")
}

func (c *Client) countStage(stage string) {
	if c.metrics != nil {
		c.metrics.GenerationErrors.WithLabelValues(stage).Inc()
	}
}
