package evmsyncer

import (
	"encoding/json"
	"evm-wire-codec/pkg/evmrpc"
	"evm-wire-codec/pkg/web3"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const normalizedBlockJSON = `{
	"block": {
		"number": "0x12c",
		"hash": "0x1d59ff54b1eb26b013ce3cb5fc9dab3705b415a67127a003c3e61eb445bb8df2",
		"parentHash": "0x9b83c12c69edb74f6c8dd5d052765c1adf940e320bd1291696e6fa07829eee71",
		"sha3Uncles": "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
		"transactionsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
		"stateRoot": "0xddc8b0234c2e0cad087c8b389aa7ef01f7d79b2570bccb77ce48648aa61c904d",
		"receiptsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
		"miner": "0xbb7b8287f3f0a933474a79eae42cbca977791171",
		"difficulty": "0x1",
		"totalDifficulty": "0x12c",
		"extraData": "0xd883010000",
		"size": "0x220",
		"gasLimit": "0x1c9c380",
		"gasUsed": "0x2dc6c0",
		"timestamp": "0x6553f100",
		"baseFeePerGas": "0x5d21dba00",
		"transactions": [
			{
				"from": "0xa7d9ddbe1f17865597fbd27ec712455208b6b76d",
				"gas": "0xc350",
				"gasPrice": "0x4a817c800",
				"input": "0xa9059cbb",
				"nonce": "0x15",
				"to": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
				"value": "0x0",
				"v": "0x1b",
				"r": "0x1",
				"s": "0x2"
			},
			{
				"from": "0x6221a9c005f6e47eb398fd867784cacfdcfff4e7",
				"gas": "0x2dc6c0",
				"gasPrice": "0x4a817c800",
				"input": "0x6080604052",
				"nonce": "0x0",
				"to": "0x",
				"value": "0xde0b6b3a7640000",
				"v": "0x150f6",
				"r": "0x1",
				"s": "0x2"
			}
		],
		"uncles": []
	},
	"receipts": [
		{
			"blockHash": "0x1d59ff54b1eb26b013ce3cb5fc9dab3705b415a67127a003c3e61eb445bb8df2",
			"blockNumber": "0x12c",
			"contractAddress": null,
			"cumulativeGasUsed": "0xb4c8",
			"gasUsed": "0xb4c8",
			"logs": [
				{
					"address": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
					"blockHash": "0x1d59ff54b1eb26b013ce3cb5fc9dab3705b415a67127a003c3e61eb445bb8df2",
					"blockNumber": "0x12c",
					"data": "0x3b9aca00",
					"logIndex": "0x0",
					"removed": false,
					"topics": [
						"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
						"0x0000000000000000000000006221a9c005f6e47eb398fd867784cacfdcfff4e7"
					],
					"transactionHash": "0x85d995eba9763907fdf35cd2034144dd9d53ce32cbec21349d4b12823c6860c5",
					"transactionIndex": "0x0"
				}
			],
			"status": "0x1",
			"transactionHash": "0x85d995eba9763907fdf35cd2034144dd9d53ce32cbec21349d4b12823c6860c5",
			"transactionIndex": "0x0"
		},
		{
			"blockHash": "0x1d59ff54b1eb26b013ce3cb5fc9dab3705b415a67127a003c3e61eb445bb8df2",
			"blockNumber": "0x12c",
			"contractAddress": "0x5fbdb2315678afecb367f032d93f642f64180aa3",
			"cumulativeGasUsed": "0x2dc6c0",
			"gasUsed": "0x2d11f8",
			"logs": [],
			"status": "0x0",
			"transactionHash": "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b",
			"transactionIndex": "0x1"
		}
	]
}`

func loadBlock(t *testing.T) *evmrpc.NormalizedBlock {
	t.Helper()
	var nb evmrpc.NormalizedBlock
	require.NoError(t, json.Unmarshal([]byte(normalizedBlockJSON), &nb))
	return &nb
}

func TestBuildBlockRow(t *testing.T) {
	nb := loadBlock(t)

	row, err := BuildBlockRow(nb.Block)
	require.NoError(t, err)

	assert.Equal(t, uint64(300), row.BlockNumber)
	assert.Equal(t, time.Unix(0x6553f100, 0).UTC(), row.BlockTime)
	assert.Len(t, row.Hash, 32)
	assert.Equal(t, web3.MustParseAddress("0xbb7b8287f3f0a933474a79eae42cbca977791171").Bytes(), row.Miner)
	assert.Nil(t, row.Nonce)
	assert.Nil(t, row.MixHash)
	assert.Equal(t, uint64(30000000), row.GasLimit)
	baseFee, ok := row.BaseFeePerGas.(*big.Int)
	require.True(t, ok)
	assert.Equal(t, "25000000000", baseFee.String())
	assert.Equal(t, "\xd8\x83\x01\x00\x00", row.ExtraData)
	assert.Empty(t, row.Uncles)
	assert.Equal(t, uint32(2), row.TxCount)
}

func TestBuildTxRows(t *testing.T) {
	nb := loadBlock(t)

	rows, err := BuildTxRows(nb)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	transfer := rows[0]
	assert.Equal(t, uint32(0), transfer.TransactionIndex)
	assert.Equal(t, "ok", transfer.Status)
	assert.Equal(t, web3.MustParseAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48").Bytes(), transfer.To)
	assert.Nil(t, transfer.ContractAddress)
	assert.Nil(t, transfer.SignedChainID, "v=27 predates replay protection")
	assert.Equal(t, uint32(1), transfer.LogCount)
	assert.Equal(t, uint64(21), transfer.Nonce)

	deploy := rows[1]
	assert.Nil(t, deploy.To)
	assert.Equal(t, "failed", deploy.Status)
	assert.Equal(t, web3.MustParseAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3").Bytes(), deploy.ContractAddress)
	assert.Equal(t, uint64(43113), deploy.SignedChainID)
	assert.Equal(t, "1000000000000000000", deploy.Value.String())
	assert.Equal(t, uint64(0x2d11f8), deploy.GasUsed)
}

func TestBuildTxRowsReceiptMismatch(t *testing.T) {
	nb := loadBlock(t)
	nb.Receipts = nb.Receipts[:1]

	_, err := BuildTxRows(nb)
	require.ErrorContains(t, err, "1 receipts, 2 transactions")

	nb = loadBlock(t)
	nb.Receipts[0], nb.Receipts[1] = nb.Receipts[1], nb.Receipts[0]
	_, err = BuildTxRows(nb)
	require.ErrorContains(t, err, "receipt at position 0 has transaction index 1")
}

func TestBuildLogRows(t *testing.T) {
	nb := loadBlock(t)

	rows, err := BuildLogRows(nb)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	l := rows[0]
	assert.Equal(t, web3.MustParseAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48").Bytes(), l.Address)
	assert.Equal(t, web3.MustParseAddress("0xa7d9ddbe1f17865597fbd27ec712455208b6b76d").Bytes(), l.TxFrom)
	assert.Equal(t, byte(0xdd), l.Topic0[0])
	require.NotNil(t, l.Topic1)
	assert.Len(t, l.Topic1, 32)
	assert.Nil(t, l.Topic2)
	assert.Nil(t, l.Topic3)
	assert.Equal(t, "\x3b\x9a\xca\x00", l.Data)
	assert.False(t, l.Removed)
}

func TestBuildLogRowsAnonymousEvent(t *testing.T) {
	nb := loadBlock(t)
	nb.Receipts[0].Logs[0].Topics = nil

	rows, err := BuildLogRows(nb)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), rows[0].Topic0)
	assert.Nil(t, rows[0].Topic1)
}

func TestBuildLogRowsTooManyTopics(t *testing.T) {
	nb := loadBlock(t)
	topic := make([]byte, 32)
	nb.Receipts[0].Logs[0].Topics = [][]byte{topic, topic, topic, topic, topic}

	_, err := BuildLogRows(nb)
	require.ErrorContains(t, err, "5 topics")
}

func TestFixedBytes(t *testing.T) {
	padded, err := fixedBytes("nonce", []byte{0x01, 0x02}, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x01, 0x02}, padded)

	_, err = fixedBytes("hash", make([]byte, 33), 32)
	require.Error(t, err)
}

func TestUintField(t *testing.T) {
	v, err := uintField("gas", big.NewInt(50000), 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(50000), v)

	_, err = uintField("index", new(big.Int).Lsh(big.NewInt(1), 32), 32)
	require.Error(t, err)

	v, err = uintField("absent", nil, 64)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestFilterAndHighestBlock(t *testing.T) {
	mk := func(n int64) *evmrpc.NormalizedBlock {
		return &evmrpc.NormalizedBlock{Block: &web3.Block{Number: big.NewInt(n)}}
	}
	blocks := []*evmrpc.NormalizedBlock{mk(7), mk(9), mk(8)}

	assert.Len(t, filterBlocks(blocks, 7), 2)
	assert.Empty(t, filterBlocks(blocks, 9))
	assert.Equal(t, uint64(9), highestBlock(blocks))
}

func TestNextBlock(t *testing.T) {
	assert.Equal(t, int64(1), nextBlock(0, 1))
	assert.Equal(t, int64(68000000), nextBlock(0, 68000000))
	assert.Equal(t, int64(101), nextBlock(100, 1))
}
