// Package render formats library data as fixed-width text for the CLI.
package render

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Sanitize drops control characters (except tab) and invalid UTF-8 bytes,
// and turns non-breaking spaces into plain ones. Tag metadata is often dirty.
func Sanitize(s string) string {
	clean := true
	for _, r := range s {
		if r == utf8.RuneError || r == '\u00a0' || (r != '\t' && unicode.IsControl(r)) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size <= 1:
		case r != '\t' && unicode.IsControl(r):
		case r == '\u00a0':
			b.WriteByte(' ')
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// Truncate shortens s to maxWidth display cells, ending with "..." when cut.
func Truncate(s string, maxWidth int) string {
	return runewidth.Truncate(Sanitize(s), maxWidth, "...")
}

// Pad fills s with spaces up to width display cells.
func Pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// TruncateAndPad returns s at exactly width display cells.
func TruncateAndPad(s string, width int) string {
	return Pad(Truncate(s, width), width)
}

// Columns joins cells, each fitted to its width, with two spaces. The last
// cell is truncated but not padded. Missing widths leave a cell untouched.
func Columns(widths []int, cells ...string) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		switch {
		case i >= len(widths):
			out[i] = Sanitize(c)
		case i == len(cells)-1:
			out[i] = Truncate(c, widths[i])
		default:
			out[i] = TruncateAndPad(c, widths[i])
		}
	}
	return strings.Join(out, "  ")
}

// Row puts left and right at both ends of a line of width cells, with at
// least one space between them.
func Row(left, right string, width int) string {
	gap := max(width-runewidth.StringWidth(left)-runewidth.StringWidth(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

// Separator creates a horizontal separator line of the specified width.
func Separator(width int) string {
	return strings.Repeat("─", width)
}

// Duration formats seconds as m:ss, or h:mm:ss from one hour up.
func Duration(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
