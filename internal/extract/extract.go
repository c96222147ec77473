// Package extract recovers structured JSON objects from free-form model text.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bububa/ljson"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// fencedJSON matches a fenced block tagged json (or jsonc), case-insensitive.
var fencedJSON = regexp.MustCompile("(?is)```[ \\t]*jsonc?[ \\t]*\\r?\\n?(.*?)```")

// ParseError reports text from which no JSON object could be recovered. Raw
// always holds the input exactly as received.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return "extract: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Value is a parsed JSON object.
type Value struct {
	raw    []byte
	fields map[string]any
}

// Extract recovers the first JSON object from text. A fenced ```json block
// wins; otherwise the span from the first '{' to the last '}' is tried.
func Extract(text string) (Value, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if v, err := parseObject(m[1]); err == nil {
			return v, nil
		}
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return Value{}, &ParseError{Raw: text, Reason: "no json object found"}
	}

	v, err := parseObject(text[start : end+1])
	if err != nil {
		return Value{}, &ParseError{Raw: text, Reason: "malformed json object", Err: err}
	}
	return v, nil
}

func parseObject(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return Value{}, eris.New("extract: not an object")
	}
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Value{}, eris.Wrap(err, "extract: decode")
	}
	if dec.More() {
		return Value{}, eris.New("extract: trailing data after object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return Value{}, eris.Wrap(err, "extract: compact")
	}
	return Value{raw: buf.Bytes(), fields: fields}, nil
}

// FromMap builds a Value from already-structured data.
func FromMap(m map[string]any) (Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return Value{}, eris.Wrap(err, "extract: marshal map")
	}
	return parseObject(string(b))
}

// IsZero reports whether v holds no object.
func (v Value) IsZero() bool { return v.raw == nil }

// Bytes returns the compact JSON encoding. The slice must not be modified.
func (v Value) Bytes() []byte { return v.raw }

// String returns the compact JSON encoding.
func (v Value) String() string { return string(v.raw) }

// Fields returns the top-level object. Numbers are json.Number.
func (v Value) Fields() map[string]any { return v.fields }

// Get reads a gjson path, e.g. "lodging.0.name".
func (v Value) Get(path string) gjson.Result {
	return gjson.GetBytes(v.raw, path)
}

// Decode leniently unmarshals the object into dst. Quoted numbers and
// numeric strings are coerced to the destination field types.
func (v Value) Decode(dst any) error {
	if v.raw == nil {
		return eris.New("extract: decode of empty value")
	}
	if err := ljson.Unmarshal(v.raw, dst); err != nil {
		return eris.Wrap(err, fmt.Sprintf("extract: decode into %T", dst))
	}
	return nil
}

// Equal reports whether both values hold the same compact encoding.
func (v Value) Equal(other Value) bool {
	return bytes.Equal(v.raw, other.raw)
}

// MarshalJSON emits the object unchanged.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == nil {
		return []byte("null"), nil
	}
	return v.raw, nil
}

// Bool interprets the field at path as a boolean. Strings "true"/"false"
// are accepted; ok is false when the field is absent or not boolean-like.
func (v Value) Bool(path string) (val bool, ok bool) {
	r := v.Get(path)
	switch r.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(r.Str)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}
