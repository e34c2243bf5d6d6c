package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapByDisplayWidth hard-wraps text to the given display width, counting
// wide runes (CJK etc.) as two cells. Existing newlines are preserved.
func wrapByDisplayWidth(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			out = append(out, "")
			continue
		}
		var (
			b strings.Builder
			w int
		)
		for _, r := range line {
			rw := runewidth.RuneWidth(r)
			if w+rw > width && w > 0 {
				out = append(out, b.String())
				b.Reset()
				w = 0
			}
			b.WriteRune(r)
			w += rw
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return out
}
