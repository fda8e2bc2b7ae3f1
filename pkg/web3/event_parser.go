package web3

import (
	"evm-wire-codec/pkg/hexcodec"
	"fmt"
	"math/big"
	"strings"
)

// DecodedKind tells which variant a DecodedValue holds.
type DecodedKind int

const (
	DecodedString DecodedKind = iota
	DecodedInteger
	DecodedBytes
	DecodedAddress
	DecodedSequence
)

// DecodedValue is one ABI-decoded event argument. Exactly one accessor matches Kind.
type DecodedValue struct {
	kind DecodedKind
	str  string
	num  *big.Int
	raw  []byte
	addr Address
	seq  []DecodedValue
}

func StringValue(s string) DecodedValue { return DecodedValue{kind: DecodedString, str: s} }
func IntegerValue(n *big.Int) DecodedValue { return DecodedValue{kind: DecodedInteger, num: n} }
func BytesValue(b []byte) DecodedValue { return DecodedValue{kind: DecodedBytes, raw: b} }
func AddressValue(a Address) DecodedValue { return DecodedValue{kind: DecodedAddress, addr: a} }
func SequenceValue(vs ...DecodedValue) DecodedValue { return DecodedValue{kind: DecodedSequence, seq: vs} }

func (v DecodedValue) Kind() DecodedKind { return v.kind }

func (v DecodedValue) AsString() (string, bool) { return v.str, v.kind == DecodedString }
func (v DecodedValue) AsInteger() (*big.Int, bool) { return v.num, v.kind == DecodedInteger }
func (v DecodedValue) AsBytes() ([]byte, bool) { return v.raw, v.kind == DecodedBytes }
func (v DecodedValue) AsAddress() (Address, bool) { return v.addr, v.kind == DecodedAddress }
func (v DecodedValue) AsSequence() ([]DecodedValue, bool) { return v.seq, v.kind == DecodedSequence }

// String renders the value the way it would appear in JSON-RPC output.
func (v DecodedValue) String() string {
	switch v.kind {
	case DecodedString:
		return v.str
	case DecodedInteger:
		return hexcodec.EncodeBig(v.num)
	case DecodedBytes:
		return hexcodec.EncodeBytes(v.raw)
	case DecodedAddress:
		return v.addr.Hex()
	case DecodedSequence:
		parts := make([]string, len(v.seq))
		for i, item := range v.seq {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("decoded(%d)", int(v.kind))
	}
}

// EventParserResult is an ABI-decoded event together with where it came from.
type EventParserResult struct {
	EventName          string
	TransactionReceipt *TransactionReceipt
	ContractAddress    Address
	DecodedResult      map[string]DecodedValue
	EventLog           *EventLog
}

// MatchesLog reports whether the result was produced from a log of its contract address.
func (r *EventParserResult) MatchesLog() bool {
	return r.EventLog != nil && r.EventLog.Address == r.ContractAddress
}
