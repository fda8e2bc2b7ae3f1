// Package hexcodec converts between JSON-RPC hex text and raw bytes or unsigned integers.
//
// Input may carry a 0x prefix or not. Output is always lowercase and 0x-prefixed.
package hexcodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidEncoding is returned for malformed hex text, odd-length byte data or a wrong byte length.
var ErrInvalidEncoding = errors.New("invalid hex encoding")

// Has0xPrefix reports whether s starts with 0x or 0X.
func Has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// StripPrefix removes a leading 0x or 0X.
func StripPrefix(s string) string {
	if Has0xPrefix(s) {
		return s[2:]
	}
	return s
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// DecodeBytes decodes hex byte data. Odd-length input is rejected rather than zero-padded.
func DecodeBytes(s string) ([]byte, error) {
	digits := StripPrefix(s)
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d in %q", ErrInvalidEncoding, len(digits), s)
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, []byte(digits)); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidEncoding, s, err)
	}
	return out, nil
}

// DecodeFixedBytes decodes hex byte data and requires exactly size bytes.
func DecodeFixedBytes(s string, size int) ([]byte, error) {
	b, err := DecodeBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidEncoding, size, len(b))
	}
	return b, nil
}

// DecodeBig decodes a hex quantity of any size. Leading zeros are accepted and
// an empty digit string ("0x") decodes to zero.
func DecodeBig(s string) (*big.Int, error) {
	digits := StripPrefix(s)
	if digits == "" {
		return new(big.Int), nil
	}
	for i := 0; i < len(digits); i++ {
		if !isHexDigit(digits[i]) {
			return nil, fmt.Errorf("%w: non-hex digit %q in quantity %q", ErrInvalidEncoding, digits[i], s)
		}
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("%w: quantity %q", ErrInvalidEncoding, s)
	}
	return v, nil
}

// DecodeUint64 decodes a hex quantity that must fit into 64 bits.
func DecodeUint64(s string) (uint64, error) {
	v, err := DecodeBig(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: quantity %q overflows uint64", ErrInvalidEncoding, s)
	}
	return v.Uint64(), nil
}

// EncodeBytes returns b as lowercase 0x-prefixed hex. Empty input encodes as "0x".
func EncodeBytes(b []byte) string {
	return hexutil.Encode(b)
}

// EncodeBig returns v as a lowercase 0x-prefixed quantity without zero padding. nil encodes as "0x0".
func EncodeBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}

// EncodeUint64 returns v as a lowercase 0x-prefixed quantity.
func EncodeUint64(v uint64) string {
	return hexutil.EncodeUint64(v)
}
