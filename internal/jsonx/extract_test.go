package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObjectStrict(t *testing.T) {
	raw, err := ExtractObject(`  {"status": "ok", "notes": "done"}  `)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","notes":"done"}`, string(raw))
}

func TestExtractObjectTrailingCommentary(t *testing.T) {
	text := "Working on it...\n{\"status\": \"ok\"}\nAll done."
	raw, err := ExtractObject(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}

func TestExtractObjectPrefersLastObject(t *testing.T) {
	text := `First I considered {"status": "draft"} but settled on:
{"status": "final", "touchedFiles": ["a.go"]}`
	raw, err := ExtractObject(text)
	require.NoError(t, err)

	var got struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "final", got.Status)
}

func TestExtractObjectNestedBraces(t *testing.T) {
	text := `log output } stray brace
{"plan": {"subtasks": [{"id": "a"}]}, "canParallelize": true}`
	raw, err := ExtractObject(text)
	require.NoError(t, err)
	assert.JSONEq(t, `{"plan":{"subtasks":[{"id":"a"}]},"canParallelize":true}`, string(raw))
}

func TestExtractObjectSnippetsInProse(t *testing.T) {
	text := `the config looks like {broken json here
then the result:
{"subtaskId": "s1", "status": "ok", "summary": "did it", "importantFiles": []}`
	raw, err := ExtractObject(text)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "s1", got["subtaskId"])
}

func TestExtractObjectNoJSON(t *testing.T) {
	for _, text := range []string{"", "   ", "no braces at all", "{never closed", "}{"} {
		_, err := ExtractObject(text)
		assert.ErrorIs(t, err, ErrNoJSON, "input %q", text)
	}
}

func TestExtractObjectIdempotent(t *testing.T) {
	text := "noise before\n{\"a\": 1, \"b\": [2, 3]}"
	first, err := ExtractObject(text)
	require.NoError(t, err)

	second, err := ExtractObject(string(first))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestDecode(t *testing.T) {
	var got struct {
		Status string `json:"status"`
	}
	require.NoError(t, Decode("blah\n{\"status\": \"ok\"}", &got))
	assert.Equal(t, "ok", got.Status)

	assert.ErrorIs(t, Decode("nothing here", &got), ErrNoJSON)
}
