package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid api key"), false},
		{"explicit", NewTransientError(errors.New("busy"), 503), true},
		{"wrapped explicit", eris.Wrap(NewTransientError(errors.New("busy"), 429), "agent: complete"), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", fmt.Errorf("get: %w", timeoutErr{}), true},
		{"tls pattern", errors.New("net/http: TLS handshake timeout"), true},
		{"rate limit pattern", errors.New("Rate limit reached for model llama"), true},
		{"eof pattern", errors.New("unexpected EOF"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 425, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	base := errors.New("upstream")
	assert.Nil(t, ClassifyStatus(nil, 503))

	got := ClassifyStatus(base, 503)
	var te *TransientError
	assert.True(t, errors.As(got, &te))
	assert.Equal(t, 503, te.StatusCode)
	assert.ErrorIs(t, got, base)

	assert.Same(t, base, ClassifyStatus(base, 401))
}

func TestTransientError_Message(t *testing.T) {
	t.Parallel()

	te := NewTransientError(errors.New("something went wrong"), 503)
	assert.Equal(t, "something went wrong", te.Error())
}
