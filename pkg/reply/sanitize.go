package reply

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// maxSanitizePasses bounds the strip-and-decode loop. Each pass peels one layer of
// entity encoding, so legitimate text converges in two or three passes.
const maxSanitizePasses = 8

// lineBreakTag matches elements whose removal should leave a line break behind.
var lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?>|</?(?:p|div|li|tr|h[1-6]|blockquote|pre|section|article|header|footer|ul|ol|table)(?:\s[^<>]*)?>`)

// stripPolicy removes every element and attribute. Script, style and similar
// elements lose their content too.
var stripPolicy = bluemonday.StrictPolicy()

// Sanitize reduces untrusted markup to inert plain text. Tags, comments and
// attributes are removed, entities decoded and whitespace collapsed. The result is
// stable: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(text string) string {
	current := collapseWhitespace(text)
	for pass := 0; pass < maxSanitizePasses; pass++ {
		next := sanitizeOnce(current)
		if next == current {
			return current
		}
		current = next
	}

	// Still changing: nested encodings deeper than the pass limit. Dropping the
	// characters that start markup and entities leaves nothing to decode.
	return collapseWhitespace(strings.Map(func(r rune) rune {
		if r == '<' || r == '&' {
			return -1
		}
		return r
	}, current))
}

func sanitizeOnce(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return collapseWhitespace(text)
	}

	withBreaks := lineBreakTag.ReplaceAllString(text, "\n")
	stripped := stripPolicy.Sanitize(withBreaks)
	return collapseWhitespace(html.UnescapeString(stripped))
}

// collapseWhitespace removes control characters, folds runs of horizontal space
// into one space, trims every line and keeps at most one blank line in a row.
func collapseWhitespace(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r), r == unicode.ReplacementChar:
			return -1
		default:
			return r
		}
	}, strings.ReplaceAll(text, "\r\n", "\n"))

	lines := strings.Split(cleaned, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
