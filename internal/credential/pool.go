// Package credential rotates API keys for generation and lookup providers.
package credential

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
)

// ErrNoCredentials is returned when a pool has nothing to dispense.
var ErrNoCredentials = eris.New("credential: no credentials configured")

// Credential is an opaque secret with its position in the pool.
type Credential struct {
	Index  int
	secret string
}

// Secret returns the raw key. Callers must not log it.
func (c Credential) Secret() string { return c.secret }

// String redacts the secret.
func (c Credential) String() string {
	return fmt.Sprintf("credential#%d(%s)", c.Index, redact(c.secret))
}

func redact(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-2:]
}

// LookupFunc resolves a named slot to a value, reporting whether it was set.
type LookupFunc func(name string) (string, bool)

// Pool dispenses credentials in round-robin order. It is safe for
// concurrent use and immutable apart from its cursor.
type Pool struct {
	creds  []Credential
	cursor atomic.Uint64
}

// New builds a pool from explicit secrets. Blank and duplicate values are
// skipped.
func New(secrets ...string) (*Pool, error) {
	p := &Pool{}
	seen := make(map[string]bool, len(secrets))
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		p.creds = append(p.creds, Credential{Index: len(p.creds), secret: s})
	}
	if len(p.creds) == 0 {
		return nil, ErrNoCredentials
	}
	return p, nil
}

// Load reads the named slots in priority order. A nil lookup reads the
// process environment.
func Load(lookup LookupFunc, slots ...string) (*Pool, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	secrets := make([]string, 0, len(slots))
	for _, slot := range slots {
		if v, ok := lookup(slot); ok {
			secrets = append(secrets, v)
		}
	}
	p, err := New(secrets...)
	if err != nil {
		return nil, eris.Wrapf(err, "credential: none of %s set", strings.Join(slots, ", "))
	}
	return p, nil
}

// Slots expands a base slot name into n numbered slots: BASE, BASE2 ... BASEn.
func Slots(base string, n int) []string {
	if n < 1 {
		n = 1
	}
	out := make([]string, 0, n)
	out = append(out, base)
	for i := 2; i <= n; i++ {
		out = append(out, fmt.Sprintf("%s%d", base, i))
	}
	return out
}

// Next returns the credential at the cursor and advances it by one modulo
// the pool size. Any N consecutive calls return each credential once.
func (p *Pool) Next() (Credential, error) {
	if p == nil || len(p.creds) == 0 {
		return Credential{}, ErrNoCredentials
	}
	n := uint64(len(p.creds))
	for {
		cur := p.cursor.Load()
		if p.cursor.CompareAndSwap(cur, (cur+1)%n) {
			return p.creds[cur], nil
		}
	}
}

// Len returns the number of credentials in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.creds)
}

// Cursor returns the index the next call to Next will dispense.
func (p *Pool) Cursor() int {
	if p == nil {
		return 0
	}
	return int(p.cursor.Load())
}
