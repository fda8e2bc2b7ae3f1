package web3

import (
	"evm-wire-codec/pkg/hexcodec"

	"github.com/ethereum/go-ethereum/core/types"
)

// Bloom is a logs bloom filter exactly as the node sent it.
type Bloom struct {
	raw []byte
}

// BloomFromBytes copies b verbatim without validating its bit layout. Absent or empty input
// means the node sent no filter, so the result is nil.
func BloomFromBytes(b []byte) *Bloom {
	if len(b) == 0 {
		return nil
	}
	raw := make([]byte, len(b))
	copy(raw, b)
	return &Bloom{raw: raw}
}

// Bytes returns a copy of the filter bytes.
func (b *Bloom) Bytes() []byte {
	out := make([]byte, len(b.raw))
	copy(out, b.raw)
	return out
}

func (b *Bloom) Hex() string {
	return hexcodec.EncodeBytes(b.raw)
}

// Contains tests whether data (an address or a topic) may be in the filter.
// Only the standard 2048-bit layout can be tested; any other size reports false.
func (b *Bloom) Contains(data []byte) bool {
	if b == nil || len(b.raw) != types.BloomByteLength {
		return false
	}
	return types.BytesToBloom(b.raw).Test(data)
}
