package evmrpc

import (
	"encoding/json"
	"errors"
	"evm-wire-codec/pkg/hexcodec"
	"evm-wire-codec/pkg/web3"
	"fmt"
)

// ErrNotFound is returned when the node answers a lookup with null.
var ErrNotFound = errors.New("not found")

// NormalizedBlock is a block with full transaction bodies and one receipt per transaction,
// in block order. Its JSON form is what the cache stores.
type NormalizedBlock struct {
	Block    *web3.Block                `json:"block"`
	Receipts []*web3.TransactionReceipt `json:"receipts"`
}

// LogFilter selects logs for eth_getLogs. Topics is positional: each entry lists the
// accepted values at that position, and an empty entry matches anything.
type LogFilter struct {
	FromBlock int64
	ToBlock   int64
	Addresses []web3.Address
	Topics    [][][]byte
}

func (lf LogFilter) params() map[string]interface{} {
	p := map[string]interface{}{
		"fromBlock": hexcodec.EncodeUint64(uint64(lf.FromBlock)),
		"toBlock":   hexcodec.EncodeUint64(uint64(lf.ToBlock)),
	}
	if len(lf.Addresses) > 0 {
		addrs := make([]string, len(lf.Addresses))
		for i, a := range lf.Addresses {
			addrs[i] = a.Hex()
		}
		p["address"] = addrs
	}
	if len(lf.Topics) > 0 {
		topics := make([]interface{}, len(lf.Topics))
		for i, alternatives := range lf.Topics {
			if len(alternatives) == 0 {
				continue
			}
			hexes := make([]string, len(alternatives))
			for j, topic := range alternatives {
				hexes[j] = hexcodec.EncodeBytes(topic)
			}
			topics[i] = hexes
		}
		p["topics"] = topics
	}
	return p
}

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type jsonRpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type jsonRpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

type ProgressCallback func(phase string, current, total int64, txCount int)
