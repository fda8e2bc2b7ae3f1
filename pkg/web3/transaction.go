package web3

import (
	"encoding/json"
	"evm-wire-codec/pkg/hexcodec"
	"math/big"
)

// eip155MinV is the smallest v that carries a chain id under EIP-155 replay protection.
var eip155MinV = big.NewInt(37)

// InferChainID derives the EIP-155 chain id from a signature v value,
// v = chainID*2 + 35 + yParity. It returns nil when v predates EIP-155.
func InferChainID(v *big.Int) *big.Int {
	if v == nil || v.Cmp(big.NewInt(35)) < 0 {
		return nil
	}
	id := new(big.Int).Sub(v, big.NewInt(35))
	return id.Rsh(id, 1)
}

// TransactionOptions are the call parameters of a transaction. Every field is
// optional on the wire; Transaction requires To, GasPrice, GasLimit and Value.
type TransactionOptions struct {
	From     *Address
	To       *Address
	GasPrice *big.Int
	GasLimit *big.Int
	Value    *big.Int
}

// Transaction is a signed transaction as reported by a node.
type Transaction struct {
	From     *Address
	To       Address
	Value    *big.Int
	GasPrice *big.Int
	GasLimit *big.Int
	Nonce    *big.Int
	Data     []byte
	V        *big.Int
	R        *big.Int
	S        *big.Int
	// ChainID is set only for EIP-155 signatures (v >= 37).
	ChainID *big.Int
}

// Options returns the call parameters of tx.
func (tx *Transaction) Options() TransactionOptions {
	to := tx.To
	return TransactionOptions{
		From:     tx.From,
		To:       &to,
		GasPrice: tx.GasPrice,
		GasLimit: tx.GasLimit,
		Value:    tx.Value,
	}
}

// IsContractDeployment reports whether tx creates a contract.
func (tx *Transaction) IsContractDeployment() bool {
	return tx.To.IsContractDeployment()
}

func decodeTransactionOptions(r *fieldReader) TransactionOptions {
	return TransactionOptions{
		GasLimit: r.optQuantity("gas"),
		GasPrice: r.optQuantity("gasPrice"),
		To:       r.optRecipient("to"),
		Value:    r.optQuantity("value"),
		From:     r.optAddress("from"),
	}
}

func decodeTransaction(src Source) (*Transaction, error) {
	r := newFieldReader("transaction", src)
	opts := decodeTransactionOptions(r)

	var data []byte
	switch {
	case r.has("data"):
		data = r.bytes("data")
	case r.has("input"):
		data = r.bytes("input")
	default:
		r.fail(missing(r.entity, "data"))
	}

	tx := &Transaction{
		From:     opts.From,
		Value:    opts.Value,
		GasPrice: opts.GasPrice,
		GasLimit: opts.GasLimit,
		Nonce:    r.quantity("nonce"),
		Data:     data,
		V:        r.quantity("v"),
		R:        r.quantity("r"),
		S:        r.quantity("s"),
	}
	if r.err != nil {
		return nil, r.err
	}

	switch {
	case opts.Value == nil:
		return nil, missing(r.entity, "value")
	case opts.To == nil:
		return nil, missing(r.entity, "to")
	case opts.GasLimit == nil:
		return nil, missing(r.entity, "gas")
	case opts.GasPrice == nil:
		return nil, missing(r.entity, "gasPrice")
	}
	tx.To = *opts.To

	if tx.V.Cmp(eip155MinV) >= 0 {
		tx.ChainID = InferChainID(tx.V)
	}
	return tx, nil
}

// DecodeTransaction decodes a transaction object from its JSON encoding.
func DecodeTransaction(data []byte) (*Transaction, error) {
	src, err := NewJSONSource(data)
	if err != nil {
		return nil, &FieldError{Entity: "transaction", Field: "$", Err: err}
	}
	return decodeTransaction(src)
}

// DecodeTransactionFromMap decodes a transaction from untyped JSON.
func DecodeTransactionFromMap(m map[string]interface{}) (*Transaction, error) {
	return decodeTransaction(NewMapSource(m))
}

// EncodeTransaction returns the wire form of tx. The payload is written as "input".
func EncodeTransaction(tx *Transaction) map[string]interface{} {
	m := map[string]interface{}{
		"to":       tx.To.Hex(),
		"value":    hexcodec.EncodeBig(tx.Value),
		"gasPrice": hexcodec.EncodeBig(tx.GasPrice),
		"gas":      hexcodec.EncodeBig(tx.GasLimit),
		"nonce":    hexcodec.EncodeBig(tx.Nonce),
		"input":    hexcodec.EncodeBytes(tx.Data),
		"v":        hexcodec.EncodeBig(tx.V),
		"r":        hexcodec.EncodeBig(tx.R),
		"s":        hexcodec.EncodeBig(tx.S),
	}
	if tx.From != nil {
		m["from"] = tx.From.Hex()
	}
	if tx.ChainID != nil {
		m["chainId"] = hexcodec.EncodeBig(tx.ChainID)
	}
	return m
}

func (tx Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeTransaction(&tx))
}

func (tx *Transaction) UnmarshalJSON(data []byte) error {
	dec, err := DecodeTransaction(data)
	if err != nil {
		return err
	}
	*tx = *dec
	return nil
}

// TransactionDetails is a transaction together with its position in the chain.
// Block fields are nil while the transaction is pending.
type TransactionDetails struct {
	BlockHash        []byte
	BlockNumber      *big.Int
	TransactionIndex *big.Int
	Transaction      Transaction
}

func decodeTransactionDetails(src Source) (*TransactionDetails, error) {
	r := newFieldReader("transactionDetails", src)
	d := &TransactionDetails{
		BlockHash:        r.optBytes("blockHash"),
		BlockNumber:      r.optQuantity("blockNumber"),
		TransactionIndex: r.optQuantity("transactionIndex"),
	}
	if r.err != nil {
		return nil, r.err
	}
	tx, err := decodeTransaction(src)
	if err != nil {
		return nil, err
	}
	d.Transaction = *tx
	return d, nil
}

// DecodeTransactionDetails decodes an eth_getTransactionByHash result.
func DecodeTransactionDetails(data []byte) (*TransactionDetails, error) {
	src, err := NewJSONSource(data)
	if err != nil {
		return nil, &FieldError{Entity: "transactionDetails", Field: "$", Err: err}
	}
	return decodeTransactionDetails(src)
}

// DecodeTransactionDetailsFromMap decodes transaction details from untyped JSON.
func DecodeTransactionDetailsFromMap(m map[string]interface{}) (*TransactionDetails, error) {
	return decodeTransactionDetails(NewMapSource(m))
}

// EncodeTransactionDetails returns the wire form of d; absent block fields are written as null.
func EncodeTransactionDetails(d *TransactionDetails) map[string]interface{} {
	m := EncodeTransaction(&d.Transaction)
	m["blockHash"] = nil
	m["blockNumber"] = nil
	m["transactionIndex"] = nil
	if d.BlockHash != nil {
		m["blockHash"] = hexcodec.EncodeBytes(d.BlockHash)
	}
	if d.BlockNumber != nil {
		m["blockNumber"] = hexcodec.EncodeBig(d.BlockNumber)
	}
	if d.TransactionIndex != nil {
		m["transactionIndex"] = hexcodec.EncodeBig(d.TransactionIndex)
	}
	return m
}

func (d TransactionDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeTransactionDetails(&d))
}

func (d *TransactionDetails) UnmarshalJSON(data []byte) error {
	dec, err := DecodeTransactionDetails(data)
	if err != nil {
		return err
	}
	*d = *dec
	return nil
}

// TransactionSendingResult pairs a submitted transaction with the hash the node assigned to it.
type TransactionSendingResult struct {
	Transaction *Transaction
	Hash        string
}
