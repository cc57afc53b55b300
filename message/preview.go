package message

import "strings"

// previewMaxLen bounds a Preview to a length reasonable for terminal/UI
// display rather than rendering a tool result's full content.
const previewMaxLen = 140

// FormatPreview normalizes whitespace in text and truncates it to
// previewMaxLen runes, for attaching a short human-readable preview to a
// ToolResultMessage alongside its full Content.
func FormatPreview(text string) string {
	if text == "" {
		return ""
	}
	out := make([]rune, 0, len(text))
	prevSpace := false
	for _, r := range text {
		switch r {
		case '\n', '\r', '\t', ' ':
			if !prevSpace {
				out = append(out, ' ')
			}
			prevSpace = true
		default:
			out = append(out, r)
			prevSpace = false
		}
	}
	if len(out) <= previewMaxLen {
		return strings.TrimSpace(string(out))
	}
	return strings.TrimSpace(string(out[:previewMaxLen]))
}
