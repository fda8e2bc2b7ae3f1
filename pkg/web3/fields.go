package web3

import (
	"evm-wire-codec/pkg/hexcodec"
	"fmt"
	"math"
	"math/big"
	"time"
)

// fieldReader reads typed fields from a Source and remembers the first failure.
// After the first error every accessor returns a zero value, so an entity decoder
// can list its fields as a flat table and check r.err once at the end.
type fieldReader struct {
	entity string
	src    Source
	err    error
}

func newFieldReader(entity string, src Source) *fieldReader {
	return &fieldReader{entity: entity, src: src}
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *fieldReader) invalid(key string, err error) {
	r.fail(&FieldError{Entity: r.entity, Field: key, Err: err})
}

func (r *fieldReader) has(key string) bool {
	_, ok := r.src.Field(key)
	return ok
}

// str returns the string at key; ok is false when the field is absent.
func (r *fieldReader) str(key string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := r.src.Field(key)
	if !ok {
		return "", false
	}
	s, err := v.Str()
	if err != nil {
		r.invalid(key, err)
		return "", false
	}
	return s, true
}

func (r *fieldReader) requiredStr(key string) (string, bool) {
	s, ok := r.str(key)
	if !ok && r.err == nil {
		r.fail(missing(r.entity, key))
	}
	return s, ok
}

func (r *fieldReader) quantity(key string) *big.Int {
	s, ok := r.requiredStr(key)
	if !ok {
		return nil
	}
	return r.parseQuantity(key, s)
}

func (r *fieldReader) optQuantity(key string) *big.Int {
	s, ok := r.str(key)
	if !ok {
		return nil
	}
	return r.parseQuantity(key, s)
}

func (r *fieldReader) parseQuantity(key, s string) *big.Int {
	v, err := hexcodec.DecodeBig(s)
	if err != nil {
		r.invalid(key, err)
		return nil
	}
	return v
}

func (r *fieldReader) bytes(key string) []byte {
	s, ok := r.requiredStr(key)
	if !ok {
		return nil
	}
	return r.parseBytes(key, s)
}

func (r *fieldReader) optBytes(key string) []byte {
	s, ok := r.str(key)
	if !ok {
		return nil
	}
	return r.parseBytes(key, s)
}

func (r *fieldReader) parseBytes(key, s string) []byte {
	b, err := hexcodec.DecodeBytes(s)
	if err != nil {
		r.invalid(key, err)
		return nil
	}
	return b
}

func (r *fieldReader) address(key string) Address {
	s, ok := r.requiredStr(key)
	if !ok {
		return Address{}
	}
	a, err := ParseAddress(s)
	if err != nil {
		r.invalid(key, err)
	}
	return a
}

func (r *fieldReader) optAddress(key string) *Address {
	s, ok := r.str(key)
	if !ok {
		return nil
	}
	a, err := ParseAddress(s)
	if err != nil {
		r.invalid(key, err)
		return nil
	}
	return &a
}

// optRecipient decodes a recipient that may be the deployment sentinel.
func (r *fieldReader) optRecipient(key string) *Address {
	s, ok := r.str(key)
	if !ok {
		return nil
	}
	a, err := ParseRecipient(s)
	if err != nil {
		r.invalid(key, err)
		return nil
	}
	return &a
}

// flag reads a numeric flag that is true only when it equals 1. Hex strings,
// JSON numbers and JSON booleans are accepted. Absent means false.
func (r *fieldReader) flag(key string) bool {
	if r.err != nil {
		return false
	}
	v, ok := r.src.Field(key)
	if !ok {
		return false
	}
	var n *big.Int
	var err error
	switch v.Kind() {
	case KindBool:
		b, _ := v.Bool()
		return b
	case KindNumber:
		n, err = v.Number()
	case KindString:
		var s string
		if s, err = v.Str(); err == nil {
			n, err = hexcodec.DecodeBig(s)
		}
	default:
		err = wrongKind(KindNumber, v.Kind())
	}
	if err != nil {
		r.invalid(key, err)
		return false
	}
	return n.Cmp(big.NewInt(1)) == 0
}

// timestamp reads hex seconds since the epoch.
func (r *fieldReader) timestamp(key string) time.Time {
	secs := r.quantity(key)
	if secs == nil {
		return time.Time{}
	}
	if !secs.IsInt64() || secs.Int64() > math.MaxInt64/int64(time.Second) {
		r.invalid(key, fmt.Errorf("%w: timestamp %s out of range", ErrInvalidEncoding, secs))
		return time.Time{}
	}
	return time.Unix(secs.Int64(), 0).UTC()
}

// list returns the list at key; a missing list is an error.
func (r *fieldReader) list(key string) []Value {
	if r.err != nil {
		return nil
	}
	v, ok := r.src.Field(key)
	if !ok {
		r.fail(missing(r.entity, key))
		return nil
	}
	items, err := v.List()
	if err != nil {
		r.invalid(key, err)
		return nil
	}
	return items
}

// byteList decodes every element of the list at key as a byte blob.
func (r *fieldReader) byteList(key string) [][]byte {
	items := r.list(key)
	if r.err != nil {
		return nil
	}
	out := make([][]byte, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", key, i)
		s, err := item.Str()
		if err != nil {
			r.invalid(field, err)
			return nil
		}
		b, err := hexcodec.DecodeBytes(s)
		if err != nil {
			r.invalid(field, err)
			return nil
		}
		out[i] = b
	}
	return out
}

// objectList decodes every element of the list at key with decode.
func objectList[T any](r *fieldReader, key string, decode func(Source) (*T, error)) []T {
	items := r.list(key)
	if r.err != nil {
		return nil
	}
	out := make([]T, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", key, i)
		src, err := item.Object()
		if err != nil {
			r.invalid(field, err)
			return nil
		}
		v, err := decode(src)
		if err != nil {
			r.fail(nest(r.entity, field, err))
			return nil
		}
		out[i] = *v
	}
	return out
}
