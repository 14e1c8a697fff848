package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// DefaultMaxDepth bounds how many nested values the resolver follows before it
// gives up on a branch.
const DefaultMaxDepth = 64

// Trace records how a payload was resolved.
type Trace struct {
	// Path lists the strategy that matched at each object on the way to the reply,
	// outermost first. Empty when no object was involved.
	Path []string

	DepthExceeded bool
	CycleDetected bool

	// Fallback is set by the Pipeline when the result was empty and the fallback
	// text was substituted.
	Fallback bool
}

// Strategy returns the innermost matched strategy, or "none".
func (t Trace) Strategy() string {
	if len(t.Path) == 0 {
		return "none"
	}

	return t.Path[len(t.Path)-1]
}

// Resolver finds the intended reply text inside a decoded payload.
type Resolver struct {
	// MaxDepth overrides DefaultMaxDepth when positive.
	MaxDepth int
}

// Extract resolves value with a default Resolver.
func Extract(value any) string {
	text, _ := Resolver{}.Resolve(value)
	return text
}

// Extract resolves value to reply text.
func (r Resolver) Extract(value any) string {
	text, _ := r.Resolve(value)
	return text
}

// Resolve resolves value to reply text and reports which strategies were used.
// It never fails: unrecognized shapes are serialized, cyclic or overly deep
// branches resolve to "".
func (r Resolver) Resolve(value any) (string, Trace) {
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	w := &walker{
		maxDepth:   maxDepth,
		strategies: defaultStrategies,
		path:       make(map[ref]struct{}),
	}
	text := w.extract(value, 0)

	for i, j := 0, len(w.trace.Path)-1; i < j; i, j = i+1, j-1 {
		w.trace.Path[i], w.trace.Path[j] = w.trace.Path[j], w.trace.Path[i]
	}

	return text, w.trace
}

// walker carries the guards for one resolution.
type walker struct {
	maxDepth   int
	strategies []strategy
	path       map[ref]struct{}
	trace      Trace
}

func (w *walker) extract(value any, depth int) string {
	if depth > w.maxDepth {
		w.trace.DepthExceeded = true
		return ""
	}

	node := inspect(value)
	switch node.kind {
	case kindAbsent:
		return ""
	case kindText:
		if looksLikeJSON(node.text) {
			if parsed, ok := parseJSON(node.text); ok {
				return w.extract(parsed, depth+1)
			}
		}
		return node.text
	case kindSequence:
		if !w.enter(node) {
			return ""
		}
		defer w.leave(node)

		if node.seqLen == 0 {
			return ""
		}
		return w.extract(node.seq(0), depth+1)
	case kindMapping:
		if !w.enter(node) {
			return ""
		}
		defer w.leave(node)

		for _, s := range w.strategies {
			if text, ok := s.match(w, node, depth); ok {
				w.trace.Path = append(w.trace.Path, s.name)
				return text
			}
		}
		return ""
	default:
		return coerceScalar(node.value)
	}
}

// enter marks a shared node as being on the current path. It reports false when
// the node is already on the path.
func (w *walker) enter(node view) bool {
	if node.identity == (ref{}) {
		return true
	}
	if _, seen := w.path[node.identity]; seen {
		w.trace.CycleDetected = true
		return false
	}
	w.path[node.identity] = struct{}{}
	return true
}

func (w *walker) leave(node view) {
	if node.identity == (ref{}) {
		return
	}
	delete(w.path, node.identity)
}

// coerceScalar renders a non-container value as text. It cannot fail.
func coerceScalar(value any) (text string) {
	switch typed := value.(type) {
	case bool:
		return strconv.FormatBool(typed)
	case json.Number:
		return typed.String()
	case float64:
		return formatFloat(typed, 64)
	case float32:
		return formatFloat(float64(typed), 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case int16:
		return strconv.FormatInt(int64(typed), 10)
	case int8:
		return strconv.FormatInt(int64(typed), 10)
	case uint:
		return strconv.FormatUint(uint64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case uint32:
		return strconv.FormatUint(uint64(typed), 10)
	case uint16:
		return strconv.FormatUint(uint64(typed), 10)
	case uint8:
		return strconv.FormatUint(uint64(typed), 10)
	}

	defer func() {
		if recover() != nil {
			text = fmt.Sprintf("[%T]", value)
		}
	}()

	switch typed := value.(type) {
	case error:
		return typed.Error()
	case fmt.Stringer:
		return typed.String()
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		return fmt.Sprint(value)
	default:
		return fmt.Sprintf("[%T]", value)
	}
}

func formatFloat(value float64, bitSize int) string {
	switch {
	case math.IsNaN(value):
		return "NaN"
	case math.IsInf(value, 1):
		return "Infinity"
	case math.IsInf(value, -1):
		return "-Infinity"
	case math.Abs(value) >= 1e21:
		return strconv.FormatFloat(value, 'g', -1, bitSize)
	default:
		return strconv.FormatFloat(value, 'f', -1, bitSize)
	}
}

var (
	errCycle       = errors.New("payload contains a cycle")
	errNodeBudget  = errors.New("payload too large to serialize")
	errUnencodable = errors.New("payload value cannot be serialized")
)
