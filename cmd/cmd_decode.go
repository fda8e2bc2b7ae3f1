package cmd

import (
	"bytes"
	"encoding/json"
	"evm-wire-codec/pkg/web3"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DecodeKinds lists the entities the decode command understands
var DecodeKinds = []string{"block", "tx", "details", "receipt", "log"}

type entityCodec struct {
	fromJSON func([]byte) (map[string]interface{}, error)
	fromMap  func(map[string]interface{}) (map[string]interface{}, error)
}

var decoders = map[string]entityCodec{
	"block": {
		fromJSON: func(b []byte) (map[string]interface{}, error) {
			v, err := web3.DecodeBlock(b)
			if err != nil {
				return nil, err
			}
			return web3.EncodeBlock(v), nil
		},
		fromMap: func(m map[string]interface{}) (map[string]interface{}, error) {
			v, err := web3.DecodeBlockFromMap(m)
			if err != nil {
				return nil, err
			}
			return web3.EncodeBlock(v), nil
		},
	},
	"tx": {
		fromJSON: func(b []byte) (map[string]interface{}, error) {
			v, err := web3.DecodeTransaction(b)
			if err != nil {
				return nil, err
			}
			return web3.EncodeTransaction(v), nil
		},
		fromMap: func(m map[string]interface{}) (map[string]interface{}, error) {
			v, err := web3.DecodeTransactionFromMap(m)
			if err != nil {
				return nil, err
			}
			return web3.EncodeTransaction(v), nil
		},
	},
	"details": {
		fromJSON: func(b []byte) (map[string]interface{}, error) {
			v, err := web3.DecodeTransactionDetails(b)
			if err != nil {
				return nil, err
			}
			return web3.EncodeTransactionDetails(v), nil
		},
		fromMap: func(m map[string]interface{}) (map[string]interface{}, error) {
			v, err := web3.DecodeTransactionDetailsFromMap(m)
			if err != nil {
				return nil, err
			}
			return web3.EncodeTransactionDetails(v), nil
		},
	},
	"receipt": {
		fromJSON: func(b []byte) (map[string]interface{}, error) {
			v, err := web3.DecodeReceipt(b)
			if err != nil {
				return nil, err
			}
			return web3.EncodeReceipt(v), nil
		},
		fromMap: func(m map[string]interface{}) (map[string]interface{}, error) {
			v, err := web3.DecodeReceiptFromMap(m)
			if err != nil {
				return nil, err
			}
			return web3.EncodeReceipt(v), nil
		},
	},
	"log": {
		fromJSON: func(b []byte) (map[string]interface{}, error) {
			v, err := web3.DecodeEventLog(b)
			if err != nil {
				return nil, err
			}
			return web3.EncodeEventLog(v), nil
		},
		fromMap: func(m map[string]interface{}) (map[string]interface{}, error) {
			v, err := web3.DecodeEventLogFromMap(m)
			if err != nil {
				return nil, err
			}
			return web3.EncodeEventLog(v), nil
		},
	},
}

// DecodeEntity decodes one wire object and returns its canonical encoding.
// With useMap the payload is first parsed into a generic map and decoded through
// the raw-map path.
func DecodeEntity(kind string, data []byte, useMap bool) ([]byte, error) {
	codec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q, expected one of %s", kind, strings.Join(DecodeKinds, ", "))
	}

	var (
		encoded map[string]interface{}
		err     error
	)
	if useMap {
		var m map[string]interface{}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to parse input: %w", err)
		}
		encoded, err = codec.fromMap(m)
	} else {
		encoded, err = codec.fromJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}

	return json.MarshalIndent(encoded, "", "  ")
}

// RunDecode reads a wire object from path (stdin when empty or "-") and writes its
// canonical JSON to out.
func RunDecode(kind string, useMap bool, path string, out io.Writer) error {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	log.Debugf("Decoding %d bytes as %s (map=%v)", len(data), kind, useMap)
	encoded, err := DecodeEntity(kind, data, useMap)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, string(encoded))
	return err
}
