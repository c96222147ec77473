// Package agent turns a stage's role and task into a single generation call
// against one of the supported model providers.
package agent

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/resilience"
	"github.com/sells-group/trip-planner/pkg/anthropic"
	"github.com/sells-group/trip-planner/pkg/gemini"
	"github.com/sells-group/trip-planner/pkg/openaicompat"
)

// Provider names accepted by NewBackend.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Completion is a provider-neutral generation request.
type Completion struct {
	Model       string
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int64
	JSONMode    bool
}

// Reply is the text a provider returned plus what it cost.
type Reply struct {
	Text  string
	Model string
	Usage model.TokenUsage
}

// Backend performs one generation call authenticated with key. Retryable
// provider failures come back as *resilience.TransientError.
type Backend interface {
	Complete(ctx context.Context, key string, c Completion) (*Reply, error)
	Provider() string
}

// AnthropicBackend adapts the Anthropic Messages API.
type AnthropicBackend struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicBackend wraps an Anthropic client.
func NewAnthropicBackend(client anthropic.Client, defaultModel string) *AnthropicBackend {
	if defaultModel == "" {
		defaultModel = "claude-haiku-4-5-20251001"
	}
	return &AnthropicBackend{client: client, defaultModel: defaultModel}
}

// Provider implements Backend.
func (b *AnthropicBackend) Provider() string { return ProviderAnthropic }

// Complete implements Backend.
func (b *AnthropicBackend) Complete(ctx context.Context, key string, c Completion) (*Reply, error) {
	mdl := orDefault(c.Model, b.defaultModel)
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		APIKey:      key,
		Model:       mdl,
		MaxTokens:   maxTokens,
		System:      c.System,
		Messages:    []anthropic.Message{{Role: "user", Content: c.Prompt}},
		Temperature: c.Temperature,
	})
	if err != nil {
		return nil, resilience.ClassifyStatus(err, anthropic.StatusCode(err))
	}
	return &Reply{
		Text:  resp.Text(),
		Model: orDefault(resp.Model, mdl),
		Usage: model.TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}

// OpenAIBackend adapts any OpenAI-compatible chat completion endpoint.
type OpenAIBackend struct {
	client       openaicompat.Client
	provider     string
	defaultModel string
}

// NewOpenAIBackend wraps an OpenAI-compatible client. provider labels the
// endpoint for logging and pricing.
func NewOpenAIBackend(client openaicompat.Client, provider, defaultModel string) *OpenAIBackend {
	return &OpenAIBackend{
		client:       client,
		provider:     orDefault(provider, ProviderGroq),
		defaultModel: orDefault(defaultModel, openaicompat.DefaultModel),
	}
}

// Provider implements Backend.
func (b *OpenAIBackend) Provider() string { return b.provider }

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, key string, c Completion) (*Reply, error) {
	mdl := orDefault(c.Model, b.defaultModel)
	resp, err := b.client.Complete(ctx, openaicompat.ChatRequest{
		APIKey:      key,
		Model:       mdl,
		System:      c.System,
		User:        c.Prompt,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		JSONMode:    c.JSONMode,
	})
	if err != nil {
		return nil, resilience.ClassifyStatus(err, openaicompat.StatusCode(err))
	}
	return &Reply{
		Text:  resp.Content,
		Model: orDefault(resp.Model, mdl),
		Usage: model.TokenUsage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens},
	}, nil
}

// GeminiBackend adapts the Gemini API.
type GeminiBackend struct {
	client       gemini.Client
	defaultModel string
}

// NewGeminiBackend wraps a Gemini client.
func NewGeminiBackend(client gemini.Client, defaultModel string) *GeminiBackend {
	return &GeminiBackend{client: client, defaultModel: orDefault(defaultModel, gemini.DefaultModel)}
}

// Provider implements Backend.
func (b *GeminiBackend) Provider() string { return ProviderGemini }

// Complete implements Backend.
func (b *GeminiBackend) Complete(ctx context.Context, key string, c Completion) (*Reply, error) {
	mdl := orDefault(c.Model, b.defaultModel)
	resp, err := b.client.Generate(ctx, gemini.GenerateRequest{
		APIKey:      key,
		Model:       mdl,
		System:      c.System,
		Prompt:      c.Prompt,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		JSONMode:    c.JSONMode,
	})
	if err != nil {
		return nil, resilience.ClassifyStatus(err, gemini.StatusCode(err))
	}
	return &Reply{
		Text:  resp.Text,
		Model: orDefault(resp.Model, mdl),
		Usage: model.TokenUsage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens},
	}, nil
}

// BackendConfig selects and configures a provider.
type BackendConfig struct {
	Provider string
	BaseURL  string
	Model    string
}

// NewBackend builds the Backend named by cfg.Provider.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Provider {
	case "", ProviderGroq, ProviderOpenAI:
		var opts []openaicompat.Option
		switch {
		case cfg.BaseURL != "":
			opts = append(opts, openaicompat.WithBaseURL(cfg.BaseURL))
		case cfg.Provider == ProviderOpenAI:
			opts = append(opts, openaicompat.WithBaseURL("https://api.openai.com/v1"))
		}
		return NewOpenAIBackend(openaicompat.NewClient(opts...), orDefault(cfg.Provider, ProviderGroq), cfg.Model), nil
	case ProviderAnthropic:
		var opts []anthropic.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return NewAnthropicBackend(anthropic.NewClient(opts...), cfg.Model), nil
	case ProviderGemini:
		var opts []gemini.Option
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		return NewGeminiBackend(gemini.NewClient(opts...), cfg.Model), nil
	default:
		return nil, eris.Errorf("agent: unknown provider %q", cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
