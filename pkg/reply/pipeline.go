package reply

import "strings"

// DefaultFallback is shown when a payload resolves to nothing displayable.
const DefaultFallback = "No reply content"

// Pipeline turns an untrusted webhook payload into safe display text:
// Decode, resolve, strip code fences, sanitize. The zero value is ready to use and
// safe for concurrent use.
type Pipeline struct {
	Resolver Resolver

	// Fallback replaces an empty result. DefaultFallback when blank.
	Fallback string
}

// Normalize runs payload through a default Pipeline.
func Normalize(payload any) string {
	text, _ := Pipeline{}.Run(payload)
	return text
}

// Normalize returns the display text for payload.
func (p Pipeline) Normalize(payload any) string {
	text, _ := p.Run(payload)
	return text
}

// Run returns the display text for payload together with a resolution trace. The
// text is never empty.
func (p Pipeline) Run(payload any) (string, Trace) {
	resolved, trace := p.Resolver.Resolve(Decode(payload))
	text := Sanitize(StripCodeFences(resolved))
	if text == "" {
		trace.Fallback = true
		return p.fallback(), trace
	}

	return text, trace
}

func (p Pipeline) fallback() string {
	if fallback := strings.TrimSpace(p.Fallback); fallback != "" {
		return fallback
	}

	return DefaultFallback
}
