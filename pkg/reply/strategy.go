package reply

import "strings"

// candidateKeys are the object keys tried first, most specific intent first.
var candidateKeys = []string{"reply", "message", "text", "output", "data", "result", "response"}

// Strategy names, in evaluation order.
const (
	StrategyCandidateKey = "candidate_key"
	StrategyChoices      = "choices"
	StrategyMessages     = "messages"
	StrategyFirstString  = "first_string"
	StrategySerialize    = "serialize"
)

// strategy recognizes one response convention for object-shaped payloads. match
// returns the resolved text and true, or false when the object does not have the
// shape it looks for.
type strategy struct {
	name  string
	match func(w *walker, obj view, depth int) (string, bool)
}

// defaultStrategies is evaluated in order; the first match wins.
var defaultStrategies = []strategy{
	{name: StrategyCandidateKey, match: matchCandidateKey},
	{name: StrategyChoices, match: matchChoices},
	{name: StrategyMessages, match: matchMessages},
	{name: StrategyFirstString, match: matchFirstString},
	{name: StrategySerialize, match: matchSerialize},
}

// CandidateKeys returns the keys tried by the candidate_key strategy, in priority
// order.
func CandidateKeys() []string {
	return append([]string(nil), candidateKeys...)
}

// Strategies returns the evaluation order used by the resolver.
func Strategies() []string {
	names := make([]string, 0, len(defaultStrategies))
	for _, s := range defaultStrategies {
		names = append(names, s.name)
	}

	return names
}

func matchCandidateKey(w *walker, obj view, depth int) (string, bool) {
	for _, key := range candidateKeys {
		if value, ok := obj.lookup(key); ok {
			return w.extract(value, depth+1), true
		}
	}

	return "", false
}

// matchChoices handles completion-style payloads: choices[0].text, then
// choices[0].message, then choices[0] itself.
func matchChoices(w *walker, obj view, depth int) (string, bool) {
	first, ok := firstElement(obj, "choices")
	if !ok {
		return "", false
	}

	return w.extract(firstPresent(first, "text", "message"), depth+1), true
}

// matchMessages handles message-list payloads: messages[0].text, then messages[0].
func matchMessages(w *walker, obj view, depth int) (string, bool) {
	first, ok := firstElement(obj, "messages")
	if !ok {
		return "", false
	}

	return w.extract(firstPresent(first, "text"), depth+1), true
}

func matchFirstString(_ *walker, obj view, _ int) (string, bool) {
	for _, member := range obj.members() {
		item := inspect(member.Value)
		if item.kind == kindText && strings.TrimSpace(item.text) != "" {
			return item.text, true
		}
	}

	return "", false
}

func matchSerialize(_ *walker, obj view, _ int) (string, bool) {
	if text, err := serialize(obj.value); err == nil {
		return text, true
	}

	return coerceOpaque(obj), true
}

// firstElement returns element 0 of the sequence stored under key when the
// sequence is non-empty and that element is not absent.
func firstElement(obj view, key string) (any, bool) {
	value, ok := obj.lookup(key)
	if !ok {
		return nil, false
	}

	seq := inspect(value)
	if seq.kind != kindSequence || seq.seqLen == 0 {
		return nil, false
	}

	first := seq.seq(0)
	if inspect(first).kind == kindAbsent {
		return nil, false
	}

	return first, true
}

// firstPresent returns the first non-absent value among element's keys, or element
// itself when none is present or element is not a mapping.
func firstPresent(element any, keys ...string) any {
	item := inspect(element)
	if item.kind != kindMapping {
		return element
	}

	for _, key := range keys {
		if value, ok := item.lookup(key); ok && inspect(value).kind != kindAbsent {
			return value
		}
	}

	return element
}
