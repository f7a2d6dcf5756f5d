package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	Null ValueKind = iota
	Bool
	Number
	Text
	List
	Object
)

// maxDepth bounds nesting so a hostile line cannot exhaust the stack.
const maxDepth = 128

// Member is one key/value pair of an Object, in source order.
type Member struct {
	Key   string
	Value Value
}

// Value is a decoded JSON value. Objects keep their members in source order
// so flattening is deterministic.
type Value struct {
	Kind    ValueKind
	Bool    bool
	Number  json.Number
	Text    string
	List    []Value
	Members []Member
}

var errTrailingData = errors.New("trailing data after JSON value")

// Decode parses exactly one JSON value from data.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec, 0)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errTrailingData
	}
	return v, nil
}

// DecodeObject parses line as a single JSON object. ok is false for invalid
// JSON, trailing data, or a top-level value that is not an object.
func DecodeObject(line string) (Value, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Value{}, false
	}
	v, err := Decode([]byte(trimmed))
	if err != nil || v.Kind != Object {
		return Value{}, false
	}
	return v, true
}

func decodeValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, fmt.Errorf("JSON nested deeper than %d", maxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := Value{Kind: Object}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				member, err := decodeValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				v.Members = append(v.Members, Member{Key: key, Value: member})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		case '[':
			v := Value{Kind: List}
			for dec.More() {
				elem, err := decodeValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				v.List = append(v.List, elem)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return v, nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return Value{Kind: Text, Text: t}, nil
	case json.Number:
		return Value{Kind: Number, Number: t}, nil
	case bool:
		return Value{Kind: Bool, Bool: t}, nil
	case nil:
		return Value{Kind: Null}, nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// Get returns the member named key. When a key repeats, the last one wins,
// matching encoding/json.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != Object {
		return Value{}, false
	}
	for i := len(v.Members) - 1; i >= 0; i-- {
		if v.Members[i].Key == key {
			return v.Members[i].Value, true
		}
	}
	return Value{}, false
}

// Path follows keys through nested objects; missing steps yield Null.
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, k := range keys {
		next, ok := cur.Get(k)
		if !ok {
			return Value{}
		}
		cur = next
	}
	return cur
}

// Str returns the text of a Text value and "" for anything else.
func (v Value) Str() string {
	if v.Kind == Text {
		return v.Text
	}
	return ""
}

// Int returns a Number as an int64.
func (v Value) Int() (int64, bool) {
	if v.Kind != Number {
		return 0, false
	}
	n, err := v.Number.Int64()
	return n, err == nil
}

// Flatten collects every non-blank string in v, depth first, in source order.
func (v Value) Flatten() []string {
	return v.FlattenSkipping()
}

// FlattenSkipping is Flatten but ignores object members whose key is listed,
// at every level.
func (v Value) FlattenSkipping(skip ...string) []string {
	var out []string
	v.flatten(skip, &out)
	return out
}

func (v Value) flatten(skip []string, out *[]string) {
	switch v.Kind {
	case Text:
		if strings.TrimSpace(v.Text) != "" {
			*out = append(*out, v.Text)
		}
	case List:
		for _, e := range v.List {
			e.flatten(skip, out)
		}
	case Object:
	members:
		for _, m := range v.Members {
			for _, s := range skip {
				if m.Key == s {
					continue members
				}
			}
			m.Value.flatten(skip, out)
		}
	}
}
