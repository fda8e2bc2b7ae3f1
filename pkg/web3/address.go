package web3

import (
	"evm-wire-codec/pkg/hexcodec"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AddressLength is the byte length of an account identifier.
const AddressLength = common.AddressLength

// Address is a 20-byte account identifier. The zero Address is the all-zero
// account; ContractDeployment is a distinct value meaning "no recipient".
type Address struct {
	addr   common.Address
	deploy bool
}

// ContractDeployment is the recipient of a transaction that creates a contract.
var ContractDeployment = Address{deploy: true}

// BytesToAddress wraps exactly 20 bytes.
func BytesToAddress(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: address must be %d bytes, got %d", ErrInvalidEncoding, AddressLength, len(b))
	}
	return Address{addr: common.BytesToAddress(b)}, nil
}

// ParseAddress decodes a 20-byte hex address with or without 0x prefix.
func ParseAddress(s string) (Address, error) {
	b, err := hexcodec.DecodeBytes(s)
	if err != nil {
		return Address{}, err
	}
	return BytesToAddress(b)
}

// ParseRecipient decodes an address in recipient position, where 0x and 0x0
// (either prefix case) mean contract deployment.
func ParseRecipient(s string) (Address, error) {
	if hexcodec.Has0xPrefix(s) {
		if digits := hexcodec.StripPrefix(s); digits == "" || digits == "0" {
			return ContractDeployment, nil
		}
	}
	return ParseAddress(s)
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsContractDeployment reports whether a is the deployment sentinel.
func (a Address) IsContractDeployment() bool {
	return a.deploy
}

// Bytes returns a copy of the 20 address bytes, or nil for the deployment sentinel.
func (a Address) Bytes() []byte {
	if a.deploy {
		return nil
	}
	return a.addr.Bytes()
}

// Common returns the go-ethereum representation. The sentinel maps to the zero address.
func (a Address) Common() common.Address {
	return a.addr
}

// Hex returns the 42-character lowercase form. The deployment sentinel renders as "0x".
func (a Address) Hex() string {
	if a.deploy {
		return "0x"
	}
	return hexcodec.EncodeBytes(a.addr[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseRecipient(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
