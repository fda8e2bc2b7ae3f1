package web3

import (
	"encoding/json"
	"evm-wire-codec/pkg/hexcodec"
	"fmt"
	"math/big"
	"time"
)

// TxEntryKind tells which variant a TransactionInBlock holds.
type TxEntryKind int

const (
	TxEntryNull TxEntryKind = iota
	TxEntryHash
	TxEntryFull
)

func (k TxEntryKind) String() string {
	switch k {
	case TxEntryHash:
		return "hash"
	case TxEntryFull:
		return "full"
	default:
		return "null"
	}
}

// TransactionInBlock is one entry of a block's transaction list: a hash when the
// block was requested without transaction bodies, a full transaction otherwise,
// or null when the node sent something else.
type TransactionInBlock struct {
	kind TxEntryKind
	hash []byte
	tx   *Transaction
}

func TxEntryFromHash(hash []byte) TransactionInBlock {
	return TransactionInBlock{kind: TxEntryHash, hash: hash}
}

func TxEntryFromTransaction(tx *Transaction) TransactionInBlock {
	return TransactionInBlock{kind: TxEntryFull, tx: tx}
}

func (e TransactionInBlock) Kind() TxEntryKind {
	return e.kind
}

// Hash returns the transaction hash of a TxEntryHash entry.
func (e TransactionInBlock) Hash() ([]byte, bool) {
	return e.hash, e.kind == TxEntryHash
}

// Transaction returns the body of a TxEntryFull entry.
func (e TransactionInBlock) Transaction() (*Transaction, bool) {
	return e.tx, e.kind == TxEntryFull
}

func decodeTxEntry(v Value) (TransactionInBlock, error) {
	switch v.Kind() {
	case KindString:
		s, _ := v.Str()
		hash, err := hexcodec.DecodeBytes(s)
		if err != nil {
			return TransactionInBlock{}, err
		}
		return TxEntryFromHash(hash), nil
	case KindObject:
		src, err := v.Object()
		if err != nil {
			return TransactionInBlock{}, err
		}
		tx, err := decodeTransaction(src)
		if err != nil {
			return TransactionInBlock{}, err
		}
		return TxEntryFromTransaction(tx), nil
	default:
		return TransactionInBlock{}, nil
	}
}

func encodeTxEntry(e TransactionInBlock) interface{} {
	switch e.kind {
	case TxEntryHash:
		return hexcodec.EncodeBytes(e.hash)
	case TxEntryFull:
		return EncodeTransaction(e.tx)
	default:
		return nil
	}
}

// Block is a block header together with its transaction list and uncle hashes.
type Block struct {
	Number           *big.Int
	Hash             []byte
	ParentHash       []byte
	Nonce            []byte
	Sha3Uncles       []byte
	LogsBloom        *Bloom
	TransactionsRoot []byte
	StateRoot        []byte
	ReceiptsRoot     []byte
	Miner            *Address
	Difficulty       *big.Int
	TotalDifficulty  *big.Int
	ExtraData        []byte
	Size             *big.Int
	GasLimit         *big.Int
	GasUsed          *big.Int
	Timestamp        time.Time
	MixHash          []byte
	BaseFeePerGas    *big.Int
	Transactions     []TransactionInBlock
	Uncles           [][]byte
}

// FullTransactions returns the bodies of all TxEntryFull entries in order.
func (b *Block) FullTransactions() []*Transaction {
	var out []*Transaction
	for _, e := range b.Transactions {
		if tx, ok := e.Transaction(); ok {
			out = append(out, tx)
		}
	}
	return out
}

func decodeBlock(src Source) (*Block, error) {
	r := newFieldReader("block", src)
	b := &Block{
		Number:           r.quantity("number"),
		Hash:             r.bytes("hash"),
		ParentHash:       r.bytes("parentHash"),
		Nonce:            r.optBytes("nonce"),
		Sha3Uncles:       r.bytes("sha3Uncles"),
		LogsBloom:        BloomFromBytes(r.optBytes("logsBloom")),
		TransactionsRoot: r.bytes("transactionsRoot"),
		StateRoot:        r.bytes("stateRoot"),
		ReceiptsRoot:     r.bytes("receiptsRoot"),
		Miner:            r.optAddress("miner"),
		Difficulty:       r.quantity("difficulty"),
		TotalDifficulty:  r.quantity("totalDifficulty"),
		ExtraData:        r.bytes("extraData"),
		Size:             r.quantity("size"),
		GasLimit:         r.quantity("gasLimit"),
		GasUsed:          r.quantity("gasUsed"),
		Timestamp:        r.timestamp("timestamp"),
		MixHash:          r.optBytes("mixHash"),
		BaseFeePerGas:    r.optQuantity("baseFeePerGas"),
		Uncles:           r.byteList("uncles"),
	}
	entries := r.list("transactions")
	if r.err != nil {
		return nil, r.err
	}

	b.Transactions = make([]TransactionInBlock, len(entries))
	for i, v := range entries {
		e, err := decodeTxEntry(v)
		if err != nil {
			return nil, nest("block", fmt.Sprintf("transactions[%d]", i), err)
		}
		b.Transactions[i] = e
	}
	return b, nil
}

// DecodeBlock decodes an eth_getBlockBy* result, with or without transaction bodies.
func DecodeBlock(data []byte) (*Block, error) {
	src, err := NewJSONSource(data)
	if err != nil {
		return nil, &FieldError{Entity: "block", Field: "$", Err: err}
	}
	return decodeBlock(src)
}

// DecodeBlockFromMap decodes a block from untyped JSON, e.g. a newHeads subscription payload.
func DecodeBlockFromMap(m map[string]interface{}) (*Block, error) {
	return decodeBlock(NewMapSource(m))
}

// EncodeBlock returns the wire form of b.
func EncodeBlock(b *Block) map[string]interface{} {
	txs := make([]interface{}, len(b.Transactions))
	for i, e := range b.Transactions {
		txs[i] = encodeTxEntry(e)
	}
	uncles := make([]interface{}, len(b.Uncles))
	for i, u := range b.Uncles {
		uncles[i] = hexcodec.EncodeBytes(u)
	}
	m := map[string]interface{}{
		"number":           hexcodec.EncodeBig(b.Number),
		"hash":             hexcodec.EncodeBytes(b.Hash),
		"parentHash":       hexcodec.EncodeBytes(b.ParentHash),
		"sha3Uncles":       hexcodec.EncodeBytes(b.Sha3Uncles),
		"transactionsRoot": hexcodec.EncodeBytes(b.TransactionsRoot),
		"stateRoot":        hexcodec.EncodeBytes(b.StateRoot),
		"receiptsRoot":     hexcodec.EncodeBytes(b.ReceiptsRoot),
		"difficulty":       hexcodec.EncodeBig(b.Difficulty),
		"totalDifficulty":  hexcodec.EncodeBig(b.TotalDifficulty),
		"extraData":        hexcodec.EncodeBytes(b.ExtraData),
		"size":             hexcodec.EncodeBig(b.Size),
		"gasLimit":         hexcodec.EncodeBig(b.GasLimit),
		"gasUsed":          hexcodec.EncodeBig(b.GasUsed),
		"timestamp":        hexcodec.EncodeUint64(uint64(b.Timestamp.Unix())),
		"transactions":     txs,
		"uncles":           uncles,
	}
	if b.Nonce != nil {
		m["nonce"] = hexcodec.EncodeBytes(b.Nonce)
	}
	if b.LogsBloom != nil {
		m["logsBloom"] = b.LogsBloom.Hex()
	}
	if b.Miner != nil {
		m["miner"] = b.Miner.Hex()
	}
	if b.MixHash != nil {
		m["mixHash"] = hexcodec.EncodeBytes(b.MixHash)
	}
	if b.BaseFeePerGas != nil {
		m["baseFeePerGas"] = hexcodec.EncodeBig(b.BaseFeePerGas)
	}
	return m
}

func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeBlock(&b))
}

func (b *Block) UnmarshalJSON(data []byte) error {
	dec, err := DecodeBlock(data)
	if err != nil {
		return err
	}
	*b = *dec
	return nil
}
