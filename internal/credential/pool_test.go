package credential

import (
	"errors"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSecrets(t *testing.T, n int) []string {
	t.Helper()
	f := gofakeit.New(42)
	out := make([]string, n)
	for i := range out {
		out[i] = "gsk_" + f.LetterN(24) + f.DigitN(8)
	}
	return out
}

func envLookup(env map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestLoad_PriorityOrder(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"GROQ_API_KEY":  "primary-key-0001",
		"GROQ_API_KEY2": "",
		"GROQ_API_KEY3": "tertiary-key-03",
	}
	p, err := Load(envLookup(env), Slots("GROQ_API_KEY", 3)...)
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())

	c, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, "primary-key-0001", c.Secret())

	c, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Index)
	assert.Equal(t, "tertiary-key-03", c.Secret())
}

func TestLoad_NoneSet(t *testing.T) {
	t.Parallel()

	p, err := Load(envLookup(map[string]string{"GROQ_API_KEY": "   "}), "GROQ_API_KEY", "GROQ_API_KEY2")
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrNoCredentials))
	assert.Contains(t, err.Error(), "GROQ_API_KEY2")
}

func TestNew_SkipsDuplicates(t *testing.T) {
	t.Parallel()

	p, err := New("a-secret-key", " a-secret-key ", "b-secret-key")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestSlots(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"SERPER_API_KEY"}, Slots("SERPER_API_KEY", 0))
	assert.Equal(t, []string{"K", "K2", "K3"}, Slots("K", 3))
}

func TestNext_RoundRobin(t *testing.T) {
	t.Parallel()

	secrets := fakeSecrets(t, 3)
	p, err := New(secrets...)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for i := 0; i < 3; i++ {
		c, err := p.Next()
		require.NoError(t, err)
		seen[c.Index] = true
		assert.Equal(t, secrets[i], c.Secret())
	}
	assert.Len(t, seen, 3)

	// Fourth call wraps to the first credential.
	c, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, 1, p.Cursor())
}

func TestNext_SingleCredential(t *testing.T) {
	t.Parallel()

	p, err := New("only-one-key-here")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		c, err := p.Next()
		require.NoError(t, err)
		assert.Equal(t, 0, c.Index)
		assert.Equal(t, 0, p.Cursor())
	}
}

func TestNext_NilPool(t *testing.T) {
	t.Parallel()

	var p *Pool
	_, err := p.Next()
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, 0, p.Len())
}

func TestNext_Concurrent(t *testing.T) {
	t.Parallel()

	const (
		n       = 4
		rounds  = 250
		workers = 8
	)
	p, err := New(fakeSecrets(t, n)...)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		counts = make(map[int]int)
		wg     sync.WaitGroup
	)
	per := n * rounds / workers
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[int]int)
			for i := 0; i < per; i++ {
				c, err := p.Next()
				if err != nil {
					t.Error(err)
					return
				}
				local[c.Index]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, counts, n)
	for idx, got := range counts {
		assert.Equal(t, rounds, got, "credential %d", idx)
	}
	assert.Equal(t, 0, p.Cursor())
}

func TestCredentialString_Redacts(t *testing.T) {
	t.Parallel()

	c := Credential{Index: 2, secret: "gsk_abcdefghijklmnop"}
	s := c.String()
	assert.NotContains(t, s, "abcdefghijklmnop")
	assert.Contains(t, s, "credential#2")

	short := Credential{secret: "abc"}
	assert.Equal(t, "credential#0(****)", short.String())
}
