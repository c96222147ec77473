package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageHandler(t *testing.T, wantKey string, seen *map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, wantKey, r.Header.Get("X-Api-Key"))
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_test_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": "```json\n{\"is_feasible\": true}\n```"},
			},
			"model":       "claude-haiku-4-5-20251001",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}
}

func TestSDKClient_CreateMessage(t *testing.T) {
	t.Parallel()

	var body map[string]any
	ts := httptest.NewServer(messageHandler(t, "key-one", &body))
	defer ts.Close()

	temp := 0.2
	client := NewClient(WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		APIKey:      "key-one",
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   1024,
		System:      "You are a travel feasibility analyst.",
		Messages:    []Message{{Role: "user", Content: "Paris, 3 days"}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "```json\n{\"is_feasible\": true}\n```", resp.Text())
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)

	assert.Equal(t, "claude-haiku-4-5-20251001", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 0.0001)
	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
}

func TestSDKClient_CreateMessage_PerCallKey(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(messageHandler(t, "key-two", nil))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		APIKey:    "key-two",
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
}

func TestSDKClient_CreateMessage_MissingKey(t *testing.T) {
	t.Parallel()

	client := NewClient(WithBaseURL("http://127.0.0.1:1"))
	_, err := client.CreateMessage(context.Background(), MessageRequest{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing api key")
}

func TestSDKClient_CreateMessage_Error(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
		})
	}))
	defer ts.Close()

	client := NewClient(WithBaseURL(ts.URL))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		APIKey:    "k",
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatusCode_NonAPIError(t *testing.T) {
	t.Parallel()

	assert.Zero(t, StatusCode(assert.AnError))
	assert.Zero(t, StatusCode(nil))
}

func TestMessageResponse_TextSkipsNonText(t *testing.T) {
	t.Parallel()

	r := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "a"},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "b"},
	}}
	assert.Equal(t, "ab", r.Text())
}
