package ui

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders markdown content for the terminal.
func RenderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// MarshalJSON indents v as JSON.
func MarshalJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteJSON writes v as indented JSON. With highlight set the output is
// colored; otherwise it is written raw, one document per call.
func WriteJSON(w io.Writer, v any, highlight bool) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	if !highlight {
		_, err = w.Write(append(data, '\n'))
		return err
	}
	return Highlight(w, string(data)+"\n", "json")
}

// Highlight writes source highlighted with the lexer for language. It falls
// back to plain output when the content cannot be tokenised.
func Highlight(w io.Writer, source, language string) error {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		_, err = io.WriteString(w, source)
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		_, err = io.WriteString(w, source)
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}
