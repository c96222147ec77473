package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feasibleObject = `{"is_feasible": true, "reason": "ok", "estimated_cost": 850}`

func TestExtract_FencedMatchesBare(t *testing.T) {
	t.Parallel()

	fenced := "Here is my assessment:\n```json\n" + feasibleObject + "\n```\nLet me know if you need more."
	bare := feasibleObject

	a, err := Extract(fenced)
	require.NoError(t, err)
	b, err := Extract(bare)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, `{"is_feasible":true,"reason":"ok","estimated_cost":850}`, a.String())
}

func TestExtract_FenceVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"uppercase tag", "```JSON\n{\"a\":1}\n```"},
		{"no newline", "```json{\"a\":1}```"},
		{"crlf", "```json\r\n{\"a\":1}\r\n```"},
		{"jsonc tag", "```jsonc\n{\"a\":1}\n```"},
		{"untagged fence", "```\n{\"a\":1}\n```"},
		{"prose around braces", "Sure! {\"a\":1} Hope this helps."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := Extract(tt.text)
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, v.String())
		})
	}
}

func TestExtract_BadFenceFallsBackToBraces(t *testing.T) {
	t.Parallel()

	text := "```json\nnot json at all\n```\nActual answer: {\"ok\": true}"
	v, err := Extract(text)
	require.NoError(t, err)
	ok, found := v.Bool("ok")
	assert.True(t, found)
	assert.True(t, ok)
}

func TestExtract_ParseErrorKeepsRaw(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"unbalanced", `{"days": [1, 2, 3}`},
		{"no braces", "I cannot help with that request."},
		{"reversed braces", "} nothing here {"},
		{"empty", ""},
		{"array only", "[1,2,3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tt.text)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.text, pe.Raw)
		})
	}
}

func TestExtract_Idempotent(t *testing.T) {
	t.Parallel()

	first, err := Extract("```json\n{\n  \"days\": [ {\"day\": 1} ],\n  \"theme\": \"art\"\n}\n```")
	require.NoError(t, err)

	second, err := Extract(first.String())
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	text := "  prefix {\"a\": \"b\"} suffix  "
	orig := text
	_, err := Extract(text)
	require.NoError(t, err)
	assert.Equal(t, orig, text)
}

func TestValue_Get(t *testing.T) {
	t.Parallel()

	v, err := Extract(`{"lodging":[{"name":"Hotel Lumiere","price_per_night":"120"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "Hotel Lumiere", v.Get("lodging.0.name").String())
	assert.InDelta(t, 120, v.Get("lodging.0.price_per_night").Float(), 0.001)
	assert.False(t, v.Get("lodging.1.name").Exists())
}

func TestValue_DecodeLenient(t *testing.T) {
	t.Parallel()

	type lodging struct {
		Name          string  `json:"name"`
		PricePerNight float64 `json:"price_per_night"`
	}
	type doc struct {
		Lodging []lodging `json:"lodging"`
	}

	v, err := Extract(`{"lodging":[{"name":"Hotel Lumiere","price_per_night":"120.5"}]}`)
	require.NoError(t, err)

	var d doc
	require.NoError(t, v.Decode(&d))
	require.Len(t, d.Lodging, 1)
	assert.InDelta(t, 120.5, d.Lodging[0].PricePerNight, 0.001)
}

func TestValue_Bool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		json   string
		want   bool
		wantOK bool
	}{
		{`{"is_feasible": false}`, false, true},
		{`{"is_feasible": true}`, true, true},
		{`{"is_feasible": "False"}`, false, true},
		{`{"is_feasible": "yes"}`, true, true},
		{`{"is_feasible": 0}`, false, false},
		{`{"other": 1}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			t.Parallel()
			v, err := Extract(tt.json)
			require.NoError(t, err)
			got, ok := v.Bool("is_feasible")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromMap(t *testing.T) {
	t.Parallel()

	v, err := FromMap(map[string]any{"b": 2, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2}`, v.String())
	assert.False(t, v.IsZero())
	assert.True(t, Value{}.IsZero())
}

func TestValue_MarshalJSON(t *testing.T) {
	t.Parallel()

	b, err := Value{}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}
