package reply

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// maxDecodeNesting bounds how deeply nested JSON text may be before it is treated
// as literal text instead of being parsed.
const maxDecodeNesting = 512

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object that keeps its keys in document order.
type Object struct {
	members []Member
	index   map[string]int
}

// NewObject builds an Object from members in the given order. A repeated key keeps
// its first position and takes the last value.
func NewObject(members ...Member) *Object {
	obj := &Object{index: make(map[string]int, len(members))}
	for _, member := range members {
		obj.set(member.Key, member.Value)
	}

	return obj
}

func (o *Object) set(key string, value any) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[key]; ok {
		o.members[i].Value = value
		return
	}
	o.index[key] = len(o.members)
	o.members = append(o.members, Member{Key: key, Value: value})
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}

	return o.members[i].Value, true
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}

	return len(o.members)
}

// Members returns a copy of the object's members in document order.
func (o *Object) Members() []Member {
	if o == nil {
		return nil
	}
	out := make([]Member, len(o.members))
	copy(out, o.members)
	return out
}

// looksLikeJSON reports whether text should be tried as structured data.
func looksLikeJSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// parseJSON parses text into a Payload. Objects become *Object, arrays []any,
// numbers json.Number.
func parseJSON(text string) (any, bool) {
	if nestingDepth(text) > maxDecodeNesting || !gjson.Valid(text) {
		return nil, false
	}

	return fromResult(gjson.Parse(text)), true
}

func fromResult(result gjson.Result) any {
	switch result.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return json.Number(strings.TrimSpace(result.Raw))
	case gjson.String:
		return result.String()
	}

	if result.IsArray() {
		items := make([]any, 0)
		result.ForEach(func(_, value gjson.Result) bool {
			items = append(items, fromResult(value))
			return true
		})
		return items
	}

	obj := NewObject()
	result.ForEach(func(key, value gjson.Result) bool {
		obj.set(key.String(), fromResult(value))
		return true
	})
	return obj
}

// nestingDepth returns the maximum bracket nesting of JSON text, ignoring
// brackets inside string literals.
func nestingDepth(text string) int {
	depth, deepest := 0, 0
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > deepest {
				deepest = depth
			}
		case '}', ']':
			depth--
		}
	}

	return deepest
}

type kind int

const (
	kindAbsent kind = iota
	kindText
	kindSequence
	kindMapping
	kindScalar
)

// view is a uniform read-only window over one Payload node.
type view struct {
	kind  kind
	text  string
	value any

	// identity is the address of the underlying map, slice or *Object, used for
	// cycle detection. Zero when the node cannot be shared.
	identity ref

	seq     func(i int) any
	seqLen  int
	members func() []Member
	lookup  func(key string) (any, bool)
}

func inspect(value any) view {
	switch typed := value.(type) {
	case nil:
		return view{kind: kindAbsent}
	case string:
		return view{kind: kindText, text: typed, value: typed}
	case *Object:
		if typed == nil {
			return view{kind: kindAbsent}
		}
		return view{
			kind:     kindMapping,
			value:    typed,
			identity: ref{addr: reflect.ValueOf(typed).Pointer()},
			members:  typed.Members,
			lookup:   typed.Get,
		}
	case []any:
		return view{
			kind:     kindSequence,
			value:    typed,
			identity: sliceIdentity(reflect.ValueOf(typed)),
			seqLen:   len(typed),
			seq:      func(i int) any { return typed[i] },
		}
	case map[string]any:
		if typed == nil {
			return view{kind: kindAbsent}
		}
		return view{
			kind:     kindMapping,
			value:    typed,
			identity: ref{addr: reflect.ValueOf(typed).Pointer()},
			members:  func() []Member { return sortedMembers(reflect.ValueOf(typed)) },
			lookup: func(key string) (any, bool) {
				v, ok := typed[key]
				return v, ok
			},
		}
	case json.Number, bool, float64, float32, int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return view{kind: kindScalar, value: typed}
	}

	return inspectReflect(value)
}

func inspectReflect(value any) view {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return view{kind: kindAbsent}
		}
		if rv.Kind() == reflect.Pointer && rv.Elem().Kind() != reflect.Map && rv.Elem().Kind() != reflect.Slice {
			break
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return view{kind: kindText, text: rv.String(), value: value}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return view{kind: kindAbsent}
		}
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return view{kind: kindText, text: string(rv.Bytes()), value: value}
		}
		identity := ref{}
		if rv.Kind() == reflect.Slice {
			identity = sliceIdentity(rv)
		}
		return view{
			kind:     kindSequence,
			value:    value,
			identity: identity,
			seqLen:   rv.Len(),
			seq:      func(i int) any { return rv.Index(i).Interface() },
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return view{kind: kindScalar, value: value}
		}
		if rv.IsNil() {
			return view{kind: kindAbsent}
		}
		return view{
			kind:     kindMapping,
			value:    value,
			identity: ref{addr: rv.Pointer()},
			members:  func() []Member { return sortedMembers(rv) },
			lookup: func(key string) (any, bool) {
				v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
				if !v.IsValid() {
					return nil, false
				}
				return v.Interface(), true
			},
		}
	}

	return view{kind: kindScalar, value: value}
}

// sortedMembers lists a Go map's entries by key so that scans are deterministic.
func sortedMembers(rv reflect.Value) []Member {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	members := make([]Member, 0, len(keys))
	for _, key := range keys {
		members = append(members, Member{Key: key.String(), Value: rv.MapIndex(key).Interface()})
	}

	return members
}

// ref identifies a shared mapping or sequence. Slices carry their length so two
// views of different length over one backing array stay distinct.
type ref struct {
	addr   uintptr
	length int
}

func sliceIdentity(rv reflect.Value) ref {
	if rv.Len() == 0 {
		return ref{}
	}

	return ref{addr: rv.Pointer(), length: rv.Len()}
}
