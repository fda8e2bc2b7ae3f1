package web3

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBlock(t *testing.T) {
	b, err := DecodeBlock([]byte(blockJSON))
	require.NoError(t, err)

	assert.Equal(t, int64(0x5daf3b), b.Number.Int64())
	assert.Len(t, b.Hash, 32)
	assert.Equal(t, time.Unix(1438271100, 0).UTC(), b.Timestamp)
	assert.Equal(t, "0x78ed983323d", EncodeBlock(b)["totalDifficulty"])
	require.NotNil(t, b.Miner)
	assert.Equal(t, "0xbb7b8287f3f0a933474a79eae42cbca977791171", b.Miner.Hex())
	assert.Len(t, b.Nonce, 8)
	assert.Nil(t, b.LogsBloom)
	assert.Nil(t, b.BaseFeePerGas)
	assert.Empty(t, b.Uncles)

	require.Len(t, b.Transactions, 2)
	assert.Equal(t, TxEntryHash, b.Transactions[0].Kind())
	hash, ok := b.Transactions[0].Hash()
	require.True(t, ok)
	assert.Equal(t, "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b", EncodeBlock(b)["transactions"].([]interface{})[0])
	assert.Len(t, hash, 32)

	assert.Equal(t, TxEntryFull, b.Transactions[1].Kind())
	tx, ok := b.Transactions[1].Transaction()
	require.True(t, ok)
	assert.Equal(t, []byte("hello!"), tx.Data)

	_, ok = b.Transactions[1].Hash()
	assert.False(t, ok)
	assert.Len(t, b.FullTransactions(), 1)
}

func TestBlockTransactionEntries(t *testing.T) {
	entries := []interface{}{
		json.RawMessage(legacyTxJSON),
		12,
		json.RawMessage("null"),
		true,
		"0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b",
	}
	data := withFields(t, blockJSON, map[string]interface{}{"transactions": entries})

	for name, decode := range map[string]func() (*Block, error){
		"structured": func() (*Block, error) { return DecodeBlock([]byte(data)) },
		"raw map":    func() (*Block, error) { return DecodeBlockFromMap(asMap(t, data)) },
	} {
		t.Run(name, func(t *testing.T) {
			b, err := decode()
			require.NoError(t, err)
			require.Len(t, b.Transactions, 5)

			kinds := make([]TxEntryKind, len(b.Transactions))
			for i, e := range b.Transactions {
				kinds[i] = e.Kind()
			}
			assert.Equal(t, []TxEntryKind{TxEntryFull, TxEntryNull, TxEntryNull, TxEntryNull, TxEntryHash}, kinds)

			txs := EncodeBlock(b)["transactions"].([]interface{})
			assert.Nil(t, txs[1])
			assert.Nil(t, txs[2])
		})
	}
}

func TestBlockFailures(t *testing.T) {
	badTx := asMap(t, legacyTxJSON)
	delete(badTx, "nonce")

	tests := []struct {
		name   string
		fields map[string]interface{}
		field  string
		target error
	}{
		{"malformed uncle", map[string]interface{}{"uncles": []interface{}{"0x1dcc", "0xnope"}}, "uncles[1]", ErrInvalidEncoding},
		{"malformed hash entry", map[string]interface{}{"transactions": []interface{}{"0x123"}}, "transactions[0]", ErrInvalidEncoding},
		{"bad full entry", map[string]interface{}{"transactions": []interface{}{"0x88df", badTx}}, "transactions[1].nonce", ErrMissingOrMismatchedField},
		{"missing transactions", map[string]interface{}{"transactions": nil}, "transactions", ErrMissingOrMismatchedField},
		{"missing total difficulty", map[string]interface{}{"totalDifficulty": nil}, "totalDifficulty", ErrMissingOrMismatchedField},
		{"malformed miner", map[string]interface{}{"miner": "0xbb7b"}, "miner", ErrInvalidEncoding},
		{"malformed timestamp", map[string]interface{}{"timestamp": "0x55ba467z"}, "timestamp", ErrInvalidEncoding},
		{"timestamp out of range", map[string]interface{}{"timestamp": "0xffffffffffffffffff"}, "timestamp", ErrInvalidEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := withFields(t, blockJSON, tt.fields)

			_, err := DecodeBlock([]byte(data))
			require.ErrorIs(t, err, tt.target)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "block", fe.Entity)
			assert.Equal(t, tt.field, fe.Field)

			_, err = DecodeBlockFromMap(asMap(t, data))
			require.ErrorIs(t, err, tt.target, "raw-map path")
		})
	}
}

func TestBlockOptionalFields(t *testing.T) {
	data := withFields(t, blockJSON, map[string]interface{}{
		"nonce":         nil,
		"miner":         json.RawMessage("null"),
		"mixHash":       "0x0000000000000000000000000000000000000000000000000000000000000000",
		"baseFeePerGas": "0x7",
	})
	b, err := DecodeBlock([]byte(data))
	require.NoError(t, err)
	assert.Nil(t, b.Nonce)
	assert.Nil(t, b.Miner)
	assert.Len(t, b.MixHash, 32)
	assert.Equal(t, int64(7), b.BaseFeePerGas.Int64())

	m := EncodeBlock(b)
	assert.NotContains(t, m, "nonce")
	assert.NotContains(t, m, "miner")
	assert.NotContains(t, m, "logsBloom")
	assert.Equal(t, "0x7", m["baseFeePerGas"])
}

func TestBlockDecodePathsAgree(t *testing.T) {
	structured, err := DecodeBlock([]byte(blockJSON))
	require.NoError(t, err)
	raw, err := DecodeBlockFromMap(asMap(t, blockJSON))
	require.NoError(t, err)
	assert.Equal(t, EncodeBlock(structured), EncodeBlock(raw))
}

func TestBlockJSONRoundTrip(t *testing.T) {
	b, err := DecodeBlock([]byte(blockJSON))
	require.NoError(t, err)

	out, err := json.Marshal(b)
	require.NoError(t, err)
	var back Block
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, EncodeBlock(b), EncodeBlock(&back))
	assert.True(t, b.Timestamp.Equal(back.Timestamp))
}

func TestDecodeBlockRejectsNonObject(t *testing.T) {
	for _, data := range []string{"null", "[]", `"0x1"`, "{"} {
		_, err := DecodeBlock([]byte(data))
		require.ErrorIs(t, err, ErrMissingOrMismatchedField, "input %s", data)
	}
}
