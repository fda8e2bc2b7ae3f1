package web3

import (
	"encoding/json"
	"evm-wire-codec/pkg/hexcodec"
	"math/big"
)

// TXStatus is the execution outcome recorded in a receipt. It is derived once at
// decode time from the wire status field.
type TXStatus int

const (
	// StatusNotYetProcessed means the receipt carries no status field.
	StatusNotYetProcessed TXStatus = iota
	StatusOK
	StatusFailed
)

func (s TXStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	default:
		return "notYetProcessed"
	}
}

func statusFromWire(status *big.Int) TXStatus {
	switch {
	case status == nil:
		return StatusNotYetProcessed
	case status.Cmp(big.NewInt(1)) == 0:
		return StatusOK
	default:
		return StatusFailed
	}
}

// TransactionReceipt is the execution outcome of a transaction.
type TransactionReceipt struct {
	TransactionHash   []byte
	BlockHash         []byte
	BlockNumber       *big.Int
	TransactionIndex  *big.Int
	ContractAddress   *Address
	CumulativeGasUsed *big.Int
	GasUsed           *big.Int
	Logs              []EventLog
	Status            TXStatus
	LogsBloom         *Bloom
}

// NotYetProcessedReceipt is a placeholder for a transaction whose receipt has not
// arrived yet. Everything except the hash is zero or empty.
func NotYetProcessedReceipt(txHash []byte) *TransactionReceipt {
	return &TransactionReceipt{
		TransactionHash:   txHash,
		BlockHash:         []byte{},
		BlockNumber:       new(big.Int),
		TransactionIndex:  new(big.Int),
		CumulativeGasUsed: new(big.Int),
		GasUsed:           new(big.Int),
		Logs:              []EventLog{},
		Status:            StatusNotYetProcessed,
	}
}

func decodeReceipt(src Source) (*TransactionReceipt, error) {
	r := newFieldReader("receipt", src)
	rc := &TransactionReceipt{
		BlockNumber:       r.quantity("blockNumber"),
		BlockHash:         r.bytes("blockHash"),
		TransactionIndex:  r.quantity("transactionIndex"),
		TransactionHash:   r.bytes("transactionHash"),
		ContractAddress:   r.optAddress("contractAddress"),
		CumulativeGasUsed: r.quantity("cumulativeGasUsed"),
		GasUsed:           r.quantity("gasUsed"),
		Logs:              objectList(r, "logs", decodeEventLog),
		Status:            statusFromWire(r.optQuantity("status")),
		LogsBloom:         BloomFromBytes(r.optBytes("logsBloom")),
	}
	if r.err != nil {
		return nil, r.err
	}
	return rc, nil
}

// DecodeReceipt decodes an eth_getTransactionReceipt result.
func DecodeReceipt(data []byte) (*TransactionReceipt, error) {
	src, err := NewJSONSource(data)
	if err != nil {
		return nil, &FieldError{Entity: "receipt", Field: "$", Err: err}
	}
	return decodeReceipt(src)
}

// DecodeReceiptFromMap decodes a receipt from untyped JSON.
func DecodeReceiptFromMap(m map[string]interface{}) (*TransactionReceipt, error) {
	return decodeReceipt(NewMapSource(m))
}

// EncodeReceipt returns the wire form of rc. A not yet processed receipt has no status
// field, a failed one is written as 0x0.
func EncodeReceipt(rc *TransactionReceipt) map[string]interface{} {
	logs := make([]interface{}, len(rc.Logs))
	for i := range rc.Logs {
		logs[i] = EncodeEventLog(&rc.Logs[i])
	}
	m := map[string]interface{}{
		"transactionHash":   hexcodec.EncodeBytes(rc.TransactionHash),
		"blockHash":         hexcodec.EncodeBytes(rc.BlockHash),
		"blockNumber":       hexcodec.EncodeBig(rc.BlockNumber),
		"transactionIndex":  hexcodec.EncodeBig(rc.TransactionIndex),
		"contractAddress":   nil,
		"cumulativeGasUsed": hexcodec.EncodeBig(rc.CumulativeGasUsed),
		"gasUsed":           hexcodec.EncodeBig(rc.GasUsed),
		"logs":              logs,
	}
	if rc.ContractAddress != nil {
		m["contractAddress"] = rc.ContractAddress.Hex()
	}
	switch rc.Status {
	case StatusOK:
		m["status"] = "0x1"
	case StatusFailed:
		m["status"] = "0x0"
	}
	if rc.LogsBloom != nil {
		m["logsBloom"] = rc.LogsBloom.Hex()
	}
	return m
}

func (rc TransactionReceipt) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeReceipt(&rc))
}

func (rc *TransactionReceipt) UnmarshalJSON(data []byte) error {
	dec, err := DecodeReceipt(data)
	if err != nil {
		return err
	}
	*rc = *dec
	return nil
}
