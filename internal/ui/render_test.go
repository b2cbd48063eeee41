package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONRaw(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]any{"id": "a", "n": 1}, false))
	assert.Equal(t, "{\n  \"id\": \"a\",\n  \"n\": 1\n}\n", buf.String())
}

func TestWriteJSONHighlighted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]any{"id": "a"}, true))

	out := buf.String()
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "id")
}

func TestHighlightUnknownLanguage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Highlight(&buf, "plain words", "no-such-language"))
	assert.Contains(t, buf.String(), "plain")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Title\n\nSome `code`.\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}

func TestHorizontalRule(t *testing.T) {
	assert.Equal(t, 5, strings.Count(HorizontalRule(5), "─"))
}

func TestFormatField(t *testing.T) {
	assert.Contains(t, FormatField("count", 3), "3")
	assert.Contains(t, FormatField("count", 3), "count:")
}
