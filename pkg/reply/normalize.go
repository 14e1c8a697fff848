package reply

import (
	"regexp"
	"strings"
)

const fence = "```"

// fencedBlock matches text that is exactly one fenced block. The language tag is
// only recognized when a line break follows it, so a one-line block keeps its
// first word.
var fencedBlock = regexp.MustCompile("(?s)^```(?:[A-Za-z0-9_+#.-]*[ \\t]*\\r?\\n)?\\s*(.*?)\\s*```$")

// StripCodeFences unwraps a reply that is a single fenced code block, removes any
// other fence markers and trims the result.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if match := fencedBlock.FindStringSubmatch(trimmed); match != nil {
		trimmed = match[1]
	}

	return strings.TrimSpace(strings.ReplaceAll(trimmed, fence, ""))
}
