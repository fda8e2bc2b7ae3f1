package web3

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Kind is the wire shape of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single wire value, independent of how the surrounding JSON was decoded.
// Accessors fail with ErrMissingOrMismatchedField when the value has a different Kind.
type Value interface {
	Kind() Kind
	Str() (string, error)
	Number() (*big.Int, error)
	Bool() (bool, error)
	Object() (Source, error)
	List() ([]Value, error)
}

// Source is a keyed view over one wire object. A field holding JSON null is
// reported as absent.
type Source interface {
	Field(key string) (Value, bool)
}

// parseNumberLiteral reads a JSON number literal that must denote an exact
// non-negative integer. "1.0" and "1e0" are accepted, "1.5" and "-1" are not.
func parseNumberLiteral(lit string) (*big.Int, error) {
	if lit == "" || !strings.ContainsRune("-0123456789", rune(lit[0])) || !json.Valid([]byte(lit)) {
		return nil, fmt.Errorf("%w: %s is not a number", ErrMissingOrMismatchedField, lit)
	}
	r, ok := new(big.Rat).SetString(lit)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a number", ErrMissingOrMismatchedField, lit)
	}
	if r.Sign() < 0 || !r.IsInt() {
		return nil, fmt.Errorf("%w: %s is not an unsigned integer", ErrMissingOrMismatchedField, lit)
	}
	return new(big.Int).Set(r.Num()), nil
}

func wrongKind(want, got Kind) error {
	return fmt.Errorf("%w: want %s, got %s", ErrMissingOrMismatchedField, want, got)
}

// jsonSource backs the structured decode path: fields are kept as raw JSON
// and only inspected when a decoder asks for them.
type jsonSource map[string]json.RawMessage

// NewJSONSource parses data as a JSON object.
func NewJSONSource(data []byte) (Source, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingOrMismatchedField, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: want object, got null", ErrMissingOrMismatchedField)
	}
	return jsonSource(fields), nil
}

func (s jsonSource) Field(key string) (Value, bool) {
	raw, ok := s[key]
	if !ok {
		return nil, false
	}
	v := jsonValue(raw)
	if v.Kind() == KindNull {
		return nil, false
	}
	return v, true
}

type jsonValue json.RawMessage

func (v jsonValue) Kind() Kind {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) == 0 {
		return KindNull
	}
	switch trimmed[0] {
	case '"':
		return KindString
	case '{':
		return KindObject
	case '[':
		return KindList
	case 't', 'f':
		return KindBool
	case 'n':
		return KindNull
	default:
		return KindNumber
	}
}

func (v jsonValue) Str() (string, error) {
	if k := v.Kind(); k != KindString {
		return "", wrongKind(KindString, k)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingOrMismatchedField, err)
	}
	return s, nil
}

func (v jsonValue) Number() (*big.Int, error) {
	if k := v.Kind(); k != KindNumber {
		return nil, wrongKind(KindNumber, k)
	}
	return parseNumberLiteral(string(bytes.TrimSpace(v)))
}

func (v jsonValue) Bool() (bool, error) {
	if k := v.Kind(); k != KindBool {
		return false, wrongKind(KindBool, k)
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMissingOrMismatchedField, err)
	}
	return b, nil
}

func (v jsonValue) Object() (Source, error) {
	if k := v.Kind(); k != KindObject {
		return nil, wrongKind(KindObject, k)
	}
	return NewJSONSource(v)
}

func (v jsonValue) List() ([]Value, error) {
	if k := v.Kind(); k != KindList {
		return nil, wrongKind(KindList, k)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingOrMismatchedField, err)
	}
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = jsonValue(item)
	}
	return out, nil
}

// mapSource backs the raw-map decode path over untyped JSON as produced by
// json.Unmarshal into map[string]interface{}.
type mapSource map[string]interface{}

// NewMapSource wraps an untyped JSON object.
func NewMapSource(m map[string]interface{}) Source {
	return mapSource(m)
}

func (s mapSource) Field(key string) (Value, bool) {
	raw, ok := s[key]
	if !ok || raw == nil {
		return nil, false
	}
	return mapValue{raw}, true
}

type mapValue struct {
	v interface{}
}

func (v mapValue) Kind() Kind {
	switch v.v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case bool:
		return KindBool
	case map[string]interface{}:
		return KindObject
	case []interface{}:
		return KindList
	case float64, float32, json.Number, int, int64, int32, uint, uint64, uint32:
		return KindNumber
	default:
		// Unknown Go types never match a requested kind.
		return KindNull
	}
}

func (v mapValue) Str() (string, error) {
	s, ok := v.v.(string)
	if !ok {
		return "", wrongKind(KindString, v.Kind())
	}
	return s, nil
}

func (v mapValue) Number() (*big.Int, error) {
	switch n := v.v.(type) {
	case float64:
		if n < 0 || math.IsInf(n, 0) || math.IsNaN(n) || n != math.Trunc(n) {
			return nil, fmt.Errorf("%w: %v is not an unsigned integer", ErrMissingOrMismatchedField, n)
		}
		f := new(big.Float).SetFloat64(n)
		i, _ := f.Int(nil)
		return i, nil
	case float32:
		return mapValue{float64(n)}.Number()
	case json.Number:
		return parseNumberLiteral(n.String())
	case int:
		return mapValue{int64(n)}.Number()
	case int32:
		return mapValue{int64(n)}.Number()
	case int64:
		if n < 0 {
			return nil, fmt.Errorf("%w: %d is not an unsigned integer", ErrMissingOrMismatchedField, n)
		}
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	default:
		return nil, wrongKind(KindNumber, v.Kind())
	}
}

func (v mapValue) Bool() (bool, error) {
	b, ok := v.v.(bool)
	if !ok {
		return false, wrongKind(KindBool, v.Kind())
	}
	return b, nil
}

func (v mapValue) Object() (Source, error) {
	m, ok := v.v.(map[string]interface{})
	if !ok {
		return nil, wrongKind(KindObject, v.Kind())
	}
	return mapSource(m), nil
}

func (v mapValue) List() ([]Value, error) {
	items, ok := v.v.([]interface{})
	if !ok {
		return nil, wrongKind(KindList, v.Kind())
	}
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = mapValue{item}
	}
	return out, nil
}
