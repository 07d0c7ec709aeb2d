package results

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// member is one key/value pair of a JSON object, in document order.
type member struct {
	key   string
	value json.RawMessage
}

// DecodeResult parses a run envelope of the form
// {"global": {...}, "local": {...}}.
func DecodeResult(data []byte) (*Result, error) {
	members, err := objectMembers(data)
	if err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}

	res := &Result{Local: NewTree()}
	for _, m := range members {
		switch m.key {
		case "global":
			g, err := DecodeGlobals(m.value)
			if err != nil {
				return nil, err
			}
			res.Global = g
		case "local":
			t, err := DecodeTree(m.value)
			if err != nil {
				return nil, err
			}
			res.Local = t
		}
	}
	return res, nil
}

// DecodeGlobals parses {"name": {"value": 1.0, "units": "V"}, ...}.
func DecodeGlobals(data []byte) (Globals, error) {
	members, err := objectMembers(data)
	if err != nil {
		return nil, fmt.Errorf("decoding global results: %w", err)
	}

	globals := make(Globals, 0, len(members))
	for _, m := range members {
		leaf, err := decodeLeaf(m.value)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", m.key, err)
		}
		globals = append(globals, Global{Name: m.key, Value: leaf.Scalar(), Units: leaf.Units})
	}
	return globals, nil
}

// DecodeTree parses the local result tree. An object with a "value" member is
// a leaf; any other object is a branch whose members are leaves.
func DecodeTree(data []byte) (*Tree, error) {
	members, err := objectMembers(data)
	if err != nil {
		return nil, fmt.Errorf("decoding local results: %w", err)
	}

	t := NewTree()
	for _, m := range members {
		n, err := decodeNode(m.value)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", m.key, err)
		}
		t.Set(m.key, n)
	}
	return t, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tree) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeTree(data)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

func decodeNode(data json.RawMessage) (Node, error) {
	members, err := objectMembers(data)
	if err != nil {
		return nil, err
	}
	if hasMember(members, "value") {
		return leafFromMembers(members)
	}

	b := NewBranch()
	for _, m := range members {
		leaf, err := decodeLeaf(m.value)
		if err != nil {
			return nil, fmt.Errorf("sub-series %q: %w", m.key, err)
		}
		b.Set(m.key, leaf)
	}
	return b, nil
}

func decodeLeaf(data json.RawMessage) (*Leaf, error) {
	members, err := objectMembers(data)
	if err != nil {
		return nil, err
	}
	if !hasMember(members, "value") {
		return nil, fmt.Errorf("leaf has no value")
	}
	return leafFromMembers(members)
}

func leafFromMembers(members []member) (*Leaf, error) {
	var raw json.RawMessage
	var units string
	for _, m := range members {
		switch m.key {
		case "value":
			raw = m.value
		case "units":
			if err := json.Unmarshal(m.value, &units); err != nil {
				return nil, fmt.Errorf("units: %w", err)
			}
		}
	}

	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("value is null")
	}

	var scalar float64
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return NewScalar(scalar, units), nil
	}
	var vector []float64
	if err := json.Unmarshal(raw, &vector); err == nil {
		return NewVector(vector, units), nil
	}
	var matrix [][]float64
	if err := json.Unmarshal(raw, &matrix); err == nil {
		return NewMatrix(matrix, units), nil
	}
	return nil, fmt.Errorf("value must be a number or a 1-D or 2-D numeric array")
}

func hasMember(members []member, key string) bool {
	for _, m := range members {
		if m.key == key {
			return true
		}
	}
	return false
}

// objectMembers reads a JSON object without losing member order.
func objectMembers(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("member %q: %w", key, err)
		}
		members = append(members, member{key: key, value: raw})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}
