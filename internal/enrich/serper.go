package enrich

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/credential"
	"github.com/sells-group/trip-planner/pkg/serper"
)

// SerperLookup resolves images through Serper. Each search draws the next
// key from the pool; a key that is out of quota or rejected is skipped for
// the next one until every key has been tried once. When all of them are,
// the error matches ErrKeysExhausted.
type SerperLookup struct {
	client serper.Client
	keys   *credential.Pool
}

// NewSerperLookup creates a Lookup backed by client and keys.
func NewSerperLookup(client serper.Client, keys *credential.Pool) *SerperLookup {
	return &SerperLookup{client: client, keys: keys}
}

// Search implements Lookup.
func (l *SerperLookup) Search(ctx context.Context, query string) (string, bool, error) {
	attempts := max(l.keys.Len(), 1)

	var (
		lastErr   error
		exhausted bool
	)
	for range attempts {
		key, err := l.keys.Next()
		if err != nil {
			return "", false, err
		}
		resp, err := l.client.Images(ctx, key.Secret(), serper.ImagesRequest{Query: query, Num: 1})
		if err == nil {
			url, ok := resp.First()
			return url, ok, nil
		}
		lastErr = err
		exhausted = keyExhausted(serper.StatusCode(err))
		if !exhausted {
			break
		}
		zap.L().Debug("enrich: serper key rejected, rotating",
			zap.Stringer("credential", key),
			zap.Int("status", serper.StatusCode(err)),
		)
	}
	if exhausted {
		return "", false, fmt.Errorf("enrich: image search %q: %w: %w", query, ErrKeysExhausted, lastErr)
	}
	return "", false, eris.Wrapf(lastErr, "enrich: image search %q", query)
}

func keyExhausted(status int) bool {
	return status == http.StatusUnauthorized ||
		status == http.StatusForbidden ||
		status == http.StatusTooManyRequests
}
