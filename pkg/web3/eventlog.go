package web3

import (
	"encoding/json"
	"evm-wire-codec/pkg/hexcodec"
	"math/big"
)

// EventLog is one log record emitted during transaction execution.
type EventLog struct {
	Address          Address
	BlockHash        []byte
	BlockNumber      *big.Int
	Data             []byte
	LogIndex         *big.Int
	Removed          bool
	Topics           [][]byte
	TransactionHash  []byte
	TransactionIndex *big.Int
}

func decodeEventLog(src Source) (*EventLog, error) {
	r := newFieldReader("log", src)
	l := &EventLog{
		Address:          r.address("address"),
		BlockHash:        r.bytes("blockHash"),
		BlockNumber:      r.quantity("blockNumber"),
		Data:             r.bytes("data"),
		LogIndex:         r.quantity("logIndex"),
		Removed:          r.flag("removed"),
		Topics:           r.byteList("topics"),
		TransactionHash:  r.bytes("transactionHash"),
		TransactionIndex: r.quantity("transactionIndex"),
	}
	if r.err != nil {
		return nil, r.err
	}
	return l, nil
}

// DecodeEventLog decodes a log object from its JSON encoding.
func DecodeEventLog(data []byte) (*EventLog, error) {
	src, err := NewJSONSource(data)
	if err != nil {
		return nil, &FieldError{Entity: "log", Field: "$", Err: err}
	}
	return decodeEventLog(src)
}

// DecodeEventLogFromMap decodes a log from untyped JSON, e.g. a logs subscription payload.
func DecodeEventLogFromMap(m map[string]interface{}) (*EventLog, error) {
	return decodeEventLog(NewMapSource(m))
}

// EncodeEventLog returns the wire form of l.
func EncodeEventLog(l *EventLog) map[string]interface{} {
	topics := make([]interface{}, len(l.Topics))
	for i, topic := range l.Topics {
		topics[i] = hexcodec.EncodeBytes(topic)
	}
	return map[string]interface{}{
		"address":          l.Address.Hex(),
		"blockHash":        hexcodec.EncodeBytes(l.BlockHash),
		"blockNumber":      hexcodec.EncodeBig(l.BlockNumber),
		"data":             hexcodec.EncodeBytes(l.Data),
		"logIndex":         hexcodec.EncodeBig(l.LogIndex),
		"removed":          l.Removed,
		"topics":           topics,
		"transactionHash":  hexcodec.EncodeBytes(l.TransactionHash),
		"transactionIndex": hexcodec.EncodeBig(l.TransactionIndex),
	}
}

func (l EventLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(EncodeEventLog(&l))
}

func (l *EventLog) UnmarshalJSON(data []byte) error {
	dec, err := DecodeEventLog(data)
	if err != nil {
		return err
	}
	*l = *dec
	return nil
}
