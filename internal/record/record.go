// Package record models a player's save-data statistics as an open,
// ordered set of fields. Nothing about the upstream schema is assumed:
// every field is optional and new fields need no code change.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags the shape of a field value.
type Kind int

const (
	Absent Kind = iota
	Number
	Text
	TextList
	Nested
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Text:
		return "text"
	case TextList:
		return "list"
	case Nested:
		return "nested"
	default:
		return "absent"
	}
}

// Value is one field value. The zero Value is Absent.
type Value struct {
	kind Kind
	num  json.Number
	text string
	list []string
	raw  json.RawMessage // compacted, Nested only
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) Number() json.Number { return v.num }
func (v Value) Text() string { return v.text }
func (v Value) List() []string { return v.list }
func (v Value) Raw() json.RawMessage { return v.raw }
func (v Value) IsAbsent() bool { return v.kind == Absent }

// NumberValue, TextValue and ListValue build values directly.
func NumberValue(n json.Number) Value { return Value{kind: Number, num: n} }
func TextValue(s string) Value { return Value{kind: Text, text: s} }
func ListValue(items []string) Value { return Value{kind: TextList, list: items} }

// Record keeps fields in the order they appeared in the source object.
type Record struct {
	keys []string
	vals map[string]Value
}

// ErrNotObject is returned by Parse when the payload is not a JSON object.
var ErrNotObject = errors.New("record: payload is not a JSON object")

// Parse decodes a JSON object into a Record, keeping key order.
// Duplicate keys keep their first position and last value.
func Parse(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Record{}, ErrNotObject
	}
	rec := Record{vals: map[string]Value{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, fmt.Errorf("record: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("record: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return Record{}, fmt.Errorf("record: field %q: %w", key, err)
		}
		v, err := classify(raw)
		if err != nil {
			return Record{}, fmt.Errorf("record: field %q: %w", key, err)
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, fmt.Errorf("record: %w", err)
	}
	return rec, nil
}

func classify(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Value{}, nil
	}
	switch raw[0] {
	case 'n':
		return Value{}, nil
	case 't', 'f':
		return TextValue(string(raw)), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return TextValue(s), nil
	case '[':
		if items, ok := stringList(raw); ok {
			return ListValue(items), nil
		}
		return nested(raw)
	case '{':
		return nested(raw)
	default:
		return NumberValue(json.Number(raw)), nil
	}
}

// stringList decodes raw as a list only when every element is a JSON
// string. Nulls and other element types keep the array Nested.
func stringList(raw json.RawMessage) ([]string, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	items := make([]string, 0, len(elems))
	for _, e := range elems {
		e = bytes.TrimSpace(e)
		if len(e) == 0 || e[0] != '"' {
			return nil, false
		}
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			return nil, false
		}
		items = append(items, s)
	}
	return items, true
}

func nested(raw json.RawMessage) (Value, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Value{}, err
	}
	return Value{kind: Nested, raw: json.RawMessage(buf.Bytes())}, nil
}

// Set adds or replaces a field. New fields go to the end.
func (r *Record) Set(key string, v Value) {
	if r.vals == nil {
		r.vals = map[string]Value{}
	}
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Get returns the field value, Absent when the field is missing.
func (r Record) Get(key string) Value { return r.vals[key] }

// Has reports whether the field is present (a null value counts as present).
func (r Record) Has(key string) bool {
	_, ok := r.vals[key]
	return ok
}

// Keys returns field names in natural order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r Record) Len() int { return len(r.keys) }

// MarshalJSON writes the record back out in natural key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Number:
		return []byte(v.num.String()), nil
	case Text:
		if v.text == "true" || v.text == "false" {
			return []byte(v.text), nil
		}
		return json.Marshal(v.text)
	case TextList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case Nested:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}
