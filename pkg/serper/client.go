// Package serper provides a client for the Serper Google image search API.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Serper operations used for media enrichment.
type Client interface {
	// Images runs an image search authenticated with apiKey.
	Images(ctx context.Context, apiKey string, req ImagesRequest) (*ImagesResponse, error)
}

// ImagesRequest is the body of POST /images.
type ImagesRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num,omitempty"`
	GL    string `json:"gl,omitempty"`
}

// ImagesResponse is the parsed /images response.
type ImagesResponse struct {
	Images  []Image `json:"images"`
	Credits int     `json:"credits"`
}

// Image is a single image search hit.
type Image struct {
	Title        string `json:"title"`
	ImageURL     string `json:"imageUrl"`
	ImageWidth   int    `json:"imageWidth"`
	ImageHeight  int    `json:"imageHeight"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Source       string `json:"source"`
	Domain       string `json:"domain"`
	Link         string `json:"link"`
	Position     int    `json:"position"`
}

// First returns the first image URL, if any.
func (r *ImagesResponse) First() (string, bool) {
	for _, img := range r.Images {
		if img.ImageURL != "" {
			return img.ImageURL, true
		}
	}
	return "", false
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("serper: unexpected status %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Option configures the Serper client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new Serper client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://google.serper.dev",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Images(ctx context.Context, apiKey string, in ImagesRequest) (*ImagesResponse, error) {
	if apiKey == "" {
		return nil, eris.New("serper: missing api key")
	}
	if in.Num == 0 {
		in.Num = 1
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "serper: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "serper: create request")
	}
	req.Header.Set("X-API-KEY", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serper: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serper: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out ImagesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "serper: decode response")
	}
	return &out, nil
}
