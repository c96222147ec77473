// Package gemini calls Google's Gemini API through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// DefaultModel is the model used when a request names none.
const DefaultModel = "gemini-2.0-flash"

// Client defines the content generation operation used by generation stages.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a single-turn generation request.
type GenerateRequest struct {
	APIKey      string
	Model       string
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   int64
	JSONMode    bool
}

// GenerateResponse holds the generated text and token usage.
type GenerateResponse struct {
	Model        string
	Text         string
	FinishReason string
	InputTokens  int64
	OutputTokens int64
}

// sdkClient keeps one genai client per API key; genai binds the key at
// construction.
type sdkClient struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// Option configures the client.
type Option func(*sdkClient)

// WithBaseURL overrides the Gemini API host.
func WithBaseURL(u string) Option {
	return func(c *sdkClient) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *sdkClient) { c.httpClient = hc }
}

// NewClient creates a Gemini client.
func NewClient(opts ...Option) Client {
	c := &sdkClient{clients: make(map[string]*genai.Client)}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *sdkClient) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions.BaseURL = c.baseURL
	}
	cl, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: new client")
	}
	c.clients[key] = cl
	return cl, nil
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.APIKey == "" {
		return nil, eris.New("gemini: missing api key")
	}
	cl, err := c.clientFor(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := cl.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: generate content")
	}

	out := &GenerateResponse{Model: model, Text: resp.Text()}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int64(u.PromptTokenCount)
		out.OutputTokens = int64(u.CandidatesTokenCount)
	}
	return out, nil
}

// StatusCode extracts the HTTP status from an API error, or 0.
func StatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
