// Package jsonx recovers JSON objects from noisy subprocess output.
//
// The Worker CLI prints free-form commentary that ends with a JSON object;
// intermediate {...} snippets may appear in the prose. Extraction prefers a
// strict parse of the whole text and falls back to the last balanced object.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no parseable JSON object exists in the input.
var ErrNoJSON = errors.New("no JSON object found in output")

// ExtractObject returns the raw bytes of the JSON object embedded in text.
//
// Strategy: trim and attempt a strict parse of the entire text; otherwise
// locate the last '}' and walk '{' positions right to left, returning the
// first balanced candidate that parses.
func ExtractObject(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoJSON
	}

	if isObject(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	end := strings.LastIndexByte(trimmed, '}')
	if end < 0 {
		return nil, ErrNoJSON
	}

	for start := strings.LastIndexByte(trimmed[:end], '{'); start >= 0; start = strings.LastIndexByte(trimmed[:start], '{') {
		candidate := trimmed[start : end+1]
		if isObject(candidate) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, ErrNoJSON
}

// Decode extracts the JSON object from text and unmarshals it into v.
func Decode(text string, v any) error {
	raw, err := ExtractObject(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// isObject reports whether s is exactly one JSON object with nothing
// trailing it.
func isObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var probe map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &probe) == nil
}
