package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ScoredField pairs an extracted value with the extraction confidence
// reported by the document-intelligence service. Score is the raw score
// value, or the empty string when the service reported none.
type ScoredField struct {
	Value Value `json:"value"`
	Score Value `json:"score"`
}

// NewScoredField builds a ScoredField, substituting "" for a missing score.
func NewScoredField(v Value, score Value, hasScore bool) ScoredField {
	if !hasScore {
		score = String("")
	}
	return ScoredField{Value: v, Score: score}
}

// Node is one entry of a Section: exactly one of a scored field, a nested
// section, or an undecorated raw value.
type Node struct {
	field *ScoredField
	group *Section
	raw   *Value
}

// FieldNode wraps a scored field.
func FieldNode(f ScoredField) Node { return Node{field: &f} }

// GroupNode wraps a nested section.
func GroupNode(s Section) Node { return Node{group: &s} }

// RawNode wraps a value that passes through undecorated.
func RawNode(v Value) Node { return Node{raw: &v} }

// Field returns the scored field held by n.
func (n Node) Field() (ScoredField, bool) {
	if n.field == nil {
		return ScoredField{}, false
	}
	return *n.field, true
}

// Group returns the nested section held by n.
func (n Node) Group() (Section, bool) {
	if n.group == nil {
		return Section{}, false
	}
	return *n.group, true
}

// Raw returns the passthrough value held by n.
func (n Node) Raw() (Value, bool) {
	if n.raw == nil {
		return Value{}, false
	}
	return *n.raw, true
}

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	switch {
	case n.field != nil:
		return json.Marshal(*n.field)
	case n.group != nil:
		return n.group.MarshalJSON()
	case n.raw != nil:
		return n.raw.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// Section is an ordered mapping from field name to Node. The zero Section
// is empty and encodes as {}.
type Section struct {
	keys  []string
	nodes map[string]Node
}

// Set adds or replaces the node stored under name.
func (s *Section) Set(name string, n Node) {
	if s.nodes == nil {
		s.nodes = make(map[string]Node)
	}
	if _, ok := s.nodes[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.nodes[name] = n
}

// Get returns the node stored under name.
func (s Section) Get(name string) (Node, bool) {
	n, ok := s.nodes[name]
	return n, ok
}

// Keys returns the section's names in insertion order.
func (s Section) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of entries.
func (s Section) Len() int { return len(s.keys) }

// Field follows path through nested groups and returns the scored field at
// its end.
func (s Section) Field(path ...string) (ScoredField, bool) {
	if len(path) == 0 {
		return ScoredField{}, false
	}
	cur := s
	for i, name := range path {
		n, ok := cur.Get(name)
		if !ok {
			return ScoredField{}, false
		}
		if i == len(path)-1 {
			return n.Field()
		}
		if cur, ok = n.Group(); !ok {
			return ScoredField{}, false
		}
	}
	return ScoredField{}, false
}

// MarshalJSON implements json.Marshaler, writing entries in insertion order.
func (s Section) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		b, err := s.nodes[k].MarshalJSON()
		if err != nil {
			return nil, eris.Wrapf(err, "model: encode section entry %q", k)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
