package reply

import (
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Decode prepares a webhook body for resolution. Text that looks like a JSON
// object or array is parsed, which unwraps double-encoded bodies; text that only
// looks like JSON stays literal. Anything else passes through unchanged.
func Decode(body any) any {
	text, ok := body.(string)
	if !ok {
		if raw, isBytes := body.([]byte); isBytes {
			text, ok = string(raw), true
		}
	}
	if !ok {
		return body
	}
	if !looksLikeJSON(text) {
		return text
	}

	if parsed, ok := parseJSON(text); ok {
		return parsed
	}

	return text
}

// DecodeBody turns a raw HTTP response body into a Payload. A body holding any
// valid JSON value is parsed; otherwise it is returned as text.
func DecodeBody(body []byte) any {
	if len(body) == 0 {
		return ""
	}

	text := string(body)
	if !utf8.ValidString(text) || nestingDepth(text) > maxDecodeNesting || !gjson.Valid(text) {
		return text
	}

	return Decode(fromResult(gjson.Parse(text)))
}
