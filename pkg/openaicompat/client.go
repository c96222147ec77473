// Package openaicompat calls chat completion endpoints that speak the OpenAI
// wire protocol (Groq, OpenRouter, a local vLLM, OpenAI itself).
package openaicompat

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rotisserie/eris"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// DefaultModel is the model used when a request names none.
const DefaultModel = "llama-3.3-70b-versatile"

// Client defines the chat completion operation used by generation stages.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single-turn chat completion request.
type ChatRequest struct {
	APIKey      string
	Model       string
	System      string
	User        string
	Temperature *float64
	MaxTokens   int64
	// JSONMode asks the provider to constrain output to a JSON object.
	JSONMode bool
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	InputTokens  int64
	OutputTokens int64
}

type httpClient struct {
	client openai.Client
}

// Option configures the client.
type Option func(*[]option.RequestOption)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithBaseURL(u)) }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *[]option.RequestOption) { *o = append(*o, option.WithHTTPClient(hc)) }
}

// NewClient creates a client for an OpenAI-compatible endpoint. SDK retries
// are disabled; callers own the retry policy.
func NewClient(opts ...Option) Client {
	reqOpts := []option.RequestOption{
		option.WithBaseURL(DefaultBaseURL),
		option.WithMaxRetries(0),
	}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &httpClient{client: openai.NewClient(reqOpts...)}
}

func (c *httpClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.APIKey == "" {
		return nil, eris.New("openaicompat: missing api key")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params, option.WithAPIKey(req.APIKey))
	if err != nil {
		return nil, eris.Wrap(err, "openaicompat: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openaicompat: response has no choices")
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// StatusCode extracts the HTTP status from an API error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
