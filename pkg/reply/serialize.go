package reply

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	maxSerializeNodes = 10000
	maxOpaqueKeys     = 16
)

// serialize renders a payload as compact JSON, keeping object key order and
// leaving HTML characters unescaped.
func serialize(value any) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			text, err = "", fmt.Errorf("%w: %v", errUnencodable, recovered)
		}
	}()

	enc := &encoder{path: make(map[ref]struct{})}
	if err := enc.encode(value); err != nil {
		return "", err
	}

	return enc.buf.String(), nil
}

type encoder struct {
	buf   bytes.Buffer
	path  map[ref]struct{}
	nodes int
}

func (e *encoder) encode(value any) error {
	e.nodes++
	if e.nodes > maxSerializeNodes {
		return errNodeBudget
	}

	node := inspect(value)
	switch node.kind {
	case kindAbsent:
		e.buf.WriteString("null")
		return nil
	case kindText:
		return e.writeString(node.text)
	case kindSequence:
		if err := e.enter(node); err != nil {
			return err
		}
		defer delete(e.path, node.identity)

		e.buf.WriteByte('[')
		for i := 0; i < node.seqLen; i++ {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.encode(node.seq(i)); err != nil {
				return err
			}
		}
		e.buf.WriteByte(']')
		return nil
	case kindMapping:
		if err := e.enter(node); err != nil {
			return err
		}
		defer delete(e.path, node.identity)

		e.buf.WriteByte('{')
		for i, member := range node.members() {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.writeString(member.Key); err != nil {
				return err
			}
			e.buf.WriteByte(':')
			if err := e.encode(member.Value); err != nil {
				return err
			}
		}
		e.buf.WriteByte('}')
		return nil
	default:
		return e.writeScalar(node.value)
	}
}

func (e *encoder) enter(node view) error {
	if node.identity == (ref{}) {
		return nil
	}
	if _, seen := e.path[node.identity]; seen {
		return errCycle
	}
	e.path[node.identity] = struct{}{}
	return nil
}

func (e *encoder) writeString(text string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(text); err != nil {
		return fmt.Errorf("%w: %v", errUnencodable, err)
	}

	e.buf.Write(bytes.TrimRight(out.Bytes(), "\n"))
	return nil
}

func (e *encoder) writeScalar(value any) error {
	switch typed := value.(type) {
	case json.Number:
		if !json.Valid([]byte(typed)) {
			return fmt.Errorf("%w: invalid number %q", errUnencodable, string(typed))
		}
		e.buf.WriteString(typed.String())
		return nil
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			e.buf.WriteString("null")
			return nil
		}
	case float32:
		if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
			e.buf.WriteString("null")
			return nil
		}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnencodable, err)
	}
	e.buf.Write(raw)
	return nil
}

// coerceOpaque describes a mapping that could not be serialized, listing its keys.
func coerceOpaque(obj view) string {
	members := obj.members()
	if len(members) == 0 {
		return "[object]"
	}

	keys := make([]string, 0, min(len(members), maxOpaqueKeys))
	for i, member := range members {
		if i == maxOpaqueKeys {
			keys = append(keys, "...")
			break
		}
		keys = append(keys, member.Key)
	}

	return "[object: " + strings.Join(keys, ", ") + "]"
}
