package web3

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const legacyTxJSON = `{
	"blockHash": "0x1d59ff54b1eb26b013ce3cb5fc9dab3705b415a67127a003c3e61eb445bb8df2",
	"blockNumber": "0x5daf3b",
	"from": "0xa7d9ddbe1f17865597fbd27ec712455208b6b76d",
	"gas": "0xc350",
	"gasPrice": "0x4a817c800",
	"hash": "0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b",
	"input": "0x68656c6c6f21",
	"nonce": "0x15",
	"to": "0xf02c1c8e6114b1dbe8937a39260b5b0a374432bb",
	"transactionIndex": "0x41",
	"value": "0xf3dbb76162000",
	"v": "0x25",
	"r": "0x1b5e176d927f8e9ab405058b2d2457392da3e20f328b16ddabcebc33eaac5fea",
	"s": "0x4ba69724e8f69de52f0125ad8b3c5c2cef33019bac3249e2c0a2192766d1721c"
}`

const transferLogJSON = `{
	"address": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	"blockHash": "0xa957d47df264a31badc3ae823e10ac1d444b098d9b73d204c40426e57f47e8c3",
	"blockNumber": "0xeff35f",
	"data": "0x000000000000000000000000000000000000000000000000000000003b9aca00",
	"logIndex": "0x6c",
	"removed": false,
	"topics": [
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		"0x0000000000000000000000006221a9c005f6e47eb398fd867784cacfdcfff4e7",
		"0x00000000000000000000000047ac0fb4f2d84898e4d9e7b4dab3c24507a6d503"
	],
	"transactionHash": "0x85d995eba9763907fdf35cd2034144dd9d53ce32cbec21349d4b12823c6860c5",
	"transactionIndex": "0x66"
}`

const receiptJSON = `{
	"blockHash": "0xa957d47df264a31badc3ae823e10ac1d444b098d9b73d204c40426e57f47e8c3",
	"blockNumber": "0xeff35f",
	"contractAddress": null,
	"cumulativeGasUsed": "0xa12515",
	"effectiveGasPrice": "0x5a9c688d4",
	"from": "0x6221a9c005f6e47eb398fd867784cacfdcfff4e7",
	"gasUsed": "0xb4c8",
	"logs": [` + transferLogJSON + `],
	"status": "0x1",
	"to": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	"transactionHash": "0x85d995eba9763907fdf35cd2034144dd9d53ce32cbec21349d4b12823c6860c5",
	"transactionIndex": "0x66",
	"type": "0x2"
}`

const blockJSON = `{
	"number": "0x5daf3b",
	"hash": "0x1d59ff54b1eb26b013ce3cb5fc9dab3705b415a67127a003c3e61eb445bb8df2",
	"parentHash": "0x9b83c12c69edb74f6c8dd5d052765c1adf940e320bd1291696e6fa07829eee71",
	"nonce": "0x689056015818adbe",
	"sha3Uncles": "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
	"transactionsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
	"stateRoot": "0xddc8b0234c2e0cad087c8b389aa7ef01f7d79b2570bccb77ce48648aa61c904d",
	"receiptsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
	"miner": "0xbb7b8287f3f0a933474a79eae42cbca977791171",
	"difficulty": "0x4ea3f27bc",
	"totalDifficulty": "0x78ed983323d",
	"extraData": "0x476574682f4c5649562f76312e302e302f6c696e75782f676f312e342e32",
	"size": "0x220",
	"gasLimit": "0x1388",
	"gasUsed": "0x0",
	"timestamp": "0x55ba467c",
	"transactions": [
		"0x88df016429689c079f3b2f6ad39fa052532c56795b733da78a91ebe6a713944b",
		` + legacyTxJSON + `
	],
	"uncles": []
}`

// asMap turns a JSON fixture into the untyped form used by the raw-map decode path.
func asMap(t *testing.T, data string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &m))
	return m
}

// withFields returns data with the given top-level fields replaced; a nil value deletes the field.
func withFields(t *testing.T, data string, fields map[string]interface{}) string {
	t.Helper()
	m := asMap(t, data)
	for k, v := range fields {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return string(out)
}
