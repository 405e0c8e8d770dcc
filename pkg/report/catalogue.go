package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Entry is one command in the catalogue.
type Entry struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// CatalogueMarkdown renders the command list as markdown: one section per
// command with its description and input schema.
func CatalogueMarkdown(entries []Entry) string {
	var b strings.Builder
	b.WriteString("# Commands\n\n")
	if len(entries) == 0 {
		b.WriteString("_No commands registered._\n")
		return b.String()
	}
	for _, e := range entries {
		b.WriteString("## " + e.Name + "\n\n")
		if e.Description != "" {
			b.WriteString(e.Description + "\n\n")
		}
		if len(e.Schema) > 0 {
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, e.Schema, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(e.Schema)
			}
			b.WriteString("```json\n" + pretty.String() + "\n```\n\n")
		}
	}
	return b.String()
}

// RenderMarkdown renders markdown for a terminal of the given width.
// Width 0 disables wrapping.
func RenderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}
