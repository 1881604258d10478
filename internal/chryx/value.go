// Package chryx implements the Chrysaetos flattening engine: a pure
// transform from a nested JSON value into a list of flat row maps.
package chryx

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind identifies the shape of a parsed JSON Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// KV is one object property, keeping insertion order explicit since Go
// maps don't preserve it and the engine's output ordering depends on it.
type KV struct {
	Key string
	Val Value
}

// Value is a parsed JSON tree that preserves object key order. Scalars
// carry their native Go representation in Scalar (string, bool,
// json.Number, or nil for JSON null).
type Value struct {
	Kind   Kind
	Obj    []KV
	Arr    []Value
	Scalar any
}

// Parse decodes a JSON document into a Value, preserving object key
// order and decoding numbers as json.Number to avoid float64 precision
// loss on round-trip.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, fmt.Errorf("chryx: trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := make([]KV, 0, 4)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("chryx: expected object key, got %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj = append(obj, KV{Key: key, Val: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return Value{}, err
			}
			return Value{Kind: KindObject, Obj: obj}, nil
		case '[':
			arr := make([]Value, 0, 4)
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return Value{}, err
			}
			return Value{Kind: KindArray, Arr: arr}, nil
		default:
			return Value{}, fmt.Errorf("chryx: unexpected delimiter %v", t)
		}
	case nil:
		return Value{Kind: KindNull}, nil
	case bool:
		return Value{Kind: KindBool, Scalar: t}, nil
	case json.Number:
		return Value{Kind: KindNumber, Scalar: t}, nil
	case string:
		return Value{Kind: KindString, Scalar: t}, nil
	default:
		return Value{}, fmt.Errorf("chryx: unexpected token type %T", tok)
	}
}

// Native converts a Value back into a plain Go value tree
// (map[string]any / []any / scalar), losing object key order. Flatten
// does not call it: folded subtrees are stored in a Row as Value and
// serialized through MarshalJSON.
func (v Value) Native() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool, KindNumber, KindString:
		return v.Scalar
	case KindArray:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = e.Native()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Obj))
		for _, kv := range v.Obj {
			out[kv.Key] = kv.Val.Native()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders a Value back to JSON, preserving object key order.
// This lets a folded subtree be stored directly in a Row and still
// serialize deterministically without going through Native's
// order-losing map conversion.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool, KindNumber, KindString:
		return json.Marshal(v.Scalar)
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range v.Arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := json.Marshal(e)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, kv := range v.Obj {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(kv.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := json.Marshal(kv.Val)
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}
