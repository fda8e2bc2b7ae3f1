package evmsyncer

import (
	"context"
	"evm-wire-codec/pkg/evmrpc"
	"evm-wire-codec/pkg/web3"
	"fmt"
	"math/big"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// BlockRow is one raw_blocks row.
type BlockRow struct {
	BlockNumber      uint64
	Hash             []byte
	ParentHash       []byte
	BlockTime        time.Time
	Miner            any // nil or 20 bytes
	Nonce            any // nil or 8 bytes
	Difficulty       *big.Int
	TotalDifficulty  *big.Int
	Size             uint64
	GasLimit         uint64
	GasUsed          uint64
	BaseFeePerGas    any // nil or *big.Int
	StateRoot        []byte
	TransactionsRoot []byte
	ReceiptsRoot     []byte
	Sha3Uncles       []byte
	MixHash          any // nil or 32 bytes
	LogsBloom        string
	ExtraData        string
	Uncles           [][]byte
	TxCount          uint32
}

// TxRow is one raw_txs row: a transaction joined with its receipt.
type TxRow struct {
	Hash              []byte
	BlockNumber       uint64
	BlockHash         []byte
	BlockTime         time.Time
	TransactionIndex  uint32
	Nonce             uint64
	From              any // nil or 20 bytes
	To                any // nil for contract deployment
	Value             *big.Int
	GasLimit          uint64
	GasPrice          *big.Int
	GasUsed           uint64
	CumulativeGasUsed uint64
	Status            string
	Input             string
	SignedChainID     any // nil or uint64
	ContractAddress   any // nil or 20 bytes
	LogCount          uint32
}

// LogRow is one raw_logs row.
type LogRow struct {
	Address          []byte
	BlockNumber      uint64
	BlockHash        []byte
	BlockTime        time.Time
	TransactionHash  []byte
	TransactionIndex uint32
	LogIndex         uint32
	TxFrom           any
	TxTo             any
	Topic0           []byte
	Topic1           any
	Topic2           any
	Topic3           any
	Data             string
	Removed          bool
}

// uintField converts a decoded quantity to a column that holds at most bits bits.
func uintField(name string, v *big.Int, bits int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || v.BitLen() > bits {
		return 0, fmt.Errorf("%s %s does not fit in %d bits", name, v, bits)
	}
	return v.Uint64(), nil
}

// fixedBytes left-pads b to size bytes for a FixedString column.
func fixedBytes(name string, b []byte, size int) ([]byte, error) {
	if len(b) > size {
		return nil, fmt.Errorf("%s too long for fixed size %d: got %d bytes", name, size, len(b))
	}
	if len(b) == size {
		return b, nil
	}
	padded := make([]byte, size)
	copy(padded[size-len(b):], b)
	return padded, nil
}

func optFixedBytes(name string, b []byte, size int) (any, error) {
	if b == nil {
		return nil, nil
	}
	return fixedBytes(name, b, size)
}

func optAddress(a *web3.Address) any {
	if a == nil || a.IsContractDeployment() {
		return nil
	}
	return a.Bytes()
}

func blockNumber(b *web3.Block) (uint64, error) {
	return uintField("block number", b.Number, 64)
}

// filterBlocks drops blocks at or below maxBlock, which are already in the table.
func filterBlocks(blocks []*evmrpc.NormalizedBlock, maxBlock uint64) []*evmrpc.NormalizedBlock {
	var filtered []*evmrpc.NormalizedBlock
	for _, b := range blocks {
		num, err := blockNumber(b.Block)
		if err != nil {
			continue
		}
		if num > maxBlock {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

// BuildBlockRow flattens a decoded block.
func BuildBlockRow(b *web3.Block) (BlockRow, error) {
	num, err := blockNumber(b)
	if err != nil {
		return BlockRow{}, err
	}
	row := BlockRow{
		BlockNumber:     num,
		BlockTime:       b.Timestamp,
		Miner:           optAddress(b.Miner),
		Difficulty:      b.Difficulty,
		TotalDifficulty: b.TotalDifficulty,
		ExtraData:       string(b.ExtraData),
		TxCount:         uint32(len(b.Transactions)),
	}
	if b.LogsBloom != nil {
		row.LogsBloom = string(b.LogsBloom.Bytes())
	}
	if b.BaseFeePerGas != nil {
		row.BaseFeePerGas = b.BaseFeePerGas
	}

	for _, f := range []struct {
		name string
		src  []byte
		dst  *[]byte
	}{
		{"hash", b.Hash, &row.Hash},
		{"parent hash", b.ParentHash, &row.ParentHash},
		{"state root", b.StateRoot, &row.StateRoot},
		{"transactions root", b.TransactionsRoot, &row.TransactionsRoot},
		{"receipts root", b.ReceiptsRoot, &row.ReceiptsRoot},
		{"sha3 uncles", b.Sha3Uncles, &row.Sha3Uncles},
	} {
		if *f.dst, err = fixedBytes(f.name, f.src, 32); err != nil {
			return BlockRow{}, fmt.Errorf("block %d: %w", num, err)
		}
	}
	if row.Nonce, err = optFixedBytes("nonce", b.Nonce, 8); err != nil {
		return BlockRow{}, fmt.Errorf("block %d: %w", num, err)
	}
	if row.MixHash, err = optFixedBytes("mix hash", b.MixHash, 32); err != nil {
		return BlockRow{}, fmt.Errorf("block %d: %w", num, err)
	}

	for _, q := range []struct {
		name string
		src  *big.Int
		dst  *uint64
	}{
		{"size", b.Size, &row.Size},
		{"gas limit", b.GasLimit, &row.GasLimit},
		{"gas used", b.GasUsed, &row.GasUsed},
	} {
		if *q.dst, err = uintField(q.name, q.src, 64); err != nil {
			return BlockRow{}, fmt.Errorf("block %d: %w", num, err)
		}
	}

	row.Uncles = make([][]byte, len(b.Uncles))
	for i, uncle := range b.Uncles {
		if row.Uncles[i], err = fixedBytes(fmt.Sprintf("uncle %d", i), uncle, 32); err != nil {
			return BlockRow{}, fmt.Errorf("block %d: %w", num, err)
		}
	}

	return row, nil
}

// BuildTxRows joins the full transactions of a block with their receipts by position.
func BuildTxRows(nb *evmrpc.NormalizedBlock) ([]TxRow, error) {
	block := nb.Block
	num, err := blockNumber(block)
	if err != nil {
		return nil, err
	}
	txs := block.FullTransactions()
	if len(nb.Receipts) != len(txs) {
		return nil, fmt.Errorf("receipts count mismatch for block %d: %d receipts, %d transactions", num, len(nb.Receipts), len(txs))
	}
	blockHash, err := fixedBytes("block hash", block.Hash, 32)
	if err != nil {
		return nil, err
	}

	rows := make([]TxRow, len(txs))
	for i, tx := range txs {
		rc := nb.Receipts[i]
		row := TxRow{
			BlockNumber: num,
			BlockHash:   blockHash,
			BlockTime:   block.Timestamp,
			From:        optAddress(tx.From),
			Value:       tx.Value,
			GasPrice:    tx.GasPrice,
			Status:      rc.Status.String(),
			Input:       string(tx.Data),
			LogCount:    uint32(len(rc.Logs)),
		}
		if !tx.IsContractDeployment() {
			row.To = tx.To.Bytes()
		}
		if rc.ContractAddress != nil {
			row.ContractAddress = rc.ContractAddress.Bytes()
		}
		if row.Hash, err = fixedBytes("transaction hash", rc.TransactionHash, 32); err != nil {
			return nil, fmt.Errorf("block %d tx %d: %w", num, i, err)
		}

		var idx uint64
		if idx, err = uintField("transaction index", rc.TransactionIndex, 32); err != nil {
			return nil, fmt.Errorf("block %d tx %d: %w", num, i, err)
		}
		if idx != uint64(i) {
			return nil, fmt.Errorf("block %d: receipt at position %d has transaction index %d", num, i, idx)
		}
		row.TransactionIndex = uint32(idx)

		for _, q := range []struct {
			name string
			src  *big.Int
			dst  *uint64
		}{
			{"nonce", tx.Nonce, &row.Nonce},
			{"gas limit", tx.GasLimit, &row.GasLimit},
			{"gas used", rc.GasUsed, &row.GasUsed},
			{"cumulative gas used", rc.CumulativeGasUsed, &row.CumulativeGasUsed},
		} {
			if *q.dst, err = uintField(q.name, q.src, 64); err != nil {
				return nil, fmt.Errorf("block %d tx %d: %w", num, i, err)
			}
		}
		if tx.ChainID != nil {
			id, err := uintField("chain id", tx.ChainID, 64)
			if err != nil {
				return nil, fmt.Errorf("block %d tx %d: %w", num, i, err)
			}
			row.SignedChainID = id
		}

		rows[i] = row
	}
	return rows, nil
}

// BuildLogRows flattens the logs of every receipt in a block. Transaction sender and
// recipient are denormalized onto each log.
func BuildLogRows(nb *evmrpc.NormalizedBlock) ([]LogRow, error) {
	block := nb.Block
	num, err := blockNumber(block)
	if err != nil {
		return nil, err
	}
	txs := block.FullTransactions()
	blockHash, err := fixedBytes("block hash", block.Hash, 32)
	if err != nil {
		return nil, err
	}

	var rows []LogRow
	for i, rc := range nb.Receipts {
		var txFrom, txTo any
		if i < len(txs) {
			txFrom = optAddress(txs[i].From)
			if !txs[i].IsContractDeployment() {
				txTo = txs[i].To.Bytes()
			}
		}

		for j := range rc.Logs {
			l := &rc.Logs[j]
			row := LogRow{
				Address:     l.Address.Bytes(),
				BlockNumber: num,
				BlockHash:   blockHash,
				BlockTime:   block.Timestamp,
				TxFrom:      txFrom,
				TxTo:        txTo,
				Data:        string(l.Data),
				Removed:     l.Removed,
			}
			if row.TransactionHash, err = fixedBytes("transaction hash", l.TransactionHash, 32); err != nil {
				return nil, fmt.Errorf("block %d log %d: %w", num, j, err)
			}
			txIndex, err := uintField("transaction index", l.TransactionIndex, 32)
			if err != nil {
				return nil, fmt.Errorf("block %d log %d: %w", num, j, err)
			}
			logIndex, err := uintField("log index", l.LogIndex, 32)
			if err != nil {
				return nil, fmt.Errorf("block %d log %d: %w", num, j, err)
			}
			row.TransactionIndex, row.LogIndex = uint32(txIndex), uint32(logIndex)

			// topic0 is non-nullable: zero for anonymous events
			row.Topic0 = make([]byte, 32)
			optional := []*any{&row.Topic1, &row.Topic2, &row.Topic3}
			for k, topic := range l.Topics {
				if k > 3 {
					return nil, fmt.Errorf("block %d log %d: %d topics", num, logIndex, len(l.Topics))
				}
				padded, err := fixedBytes(fmt.Sprintf("topic%d", k), topic, 32)
				if err != nil {
					return nil, fmt.Errorf("block %d log %d: %w", num, logIndex, err)
				}
				if k == 0 {
					row.Topic0 = padded
				} else {
					*optional[k-1] = padded
				}
			}

			rows = append(rows, row)
		}
	}
	return rows, nil
}

// InsertBlocks inserts block data into the raw_blocks table
func InsertBlocks(ctx context.Context, conn clickhouse.Conn, chainID uint32, blocks []*evmrpc.NormalizedBlock, maxBlock uint64) error {
	filtered := filterBlocks(blocks, maxBlock)
	if len(filtered) == 0 {
		return nil
	}

	batch, err := conn.PrepareBatch(ctx, `INSERT INTO raw_blocks (
		chain_id, block_number, hash, parent_hash, block_time, miner, nonce,
		difficulty, total_difficulty, size, gas_limit, gas_used, base_fee_per_gas,
		state_root, transactions_root, receipts_root, sha3_uncles, mix_hash,
		logs_bloom, extra_data, uncles, tx_count
	)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, nb := range filtered {
		r, err := BuildBlockRow(nb.Block)
		if err != nil {
			return err
		}
		err = batch.Append(
			chainID, r.BlockNumber, r.Hash, r.ParentHash, r.BlockTime, r.Miner, r.Nonce,
			r.Difficulty, r.TotalDifficulty, r.Size, r.GasLimit, r.GasUsed, r.BaseFeePerGas,
			r.StateRoot, r.TransactionsRoot, r.ReceiptsRoot, r.Sha3Uncles, r.MixHash,
			r.LogsBloom, r.ExtraData, r.Uncles, r.TxCount,
		)
		if err != nil {
			return fmt.Errorf("failed to append block %d: %w", r.BlockNumber, err)
		}
	}

	return batch.Send()
}

// InsertTransactions inserts transactions merged with receipts into the raw_txs table
func InsertTransactions(ctx context.Context, conn clickhouse.Conn, chainID uint32, blocks []*evmrpc.NormalizedBlock, maxBlock uint64) error {
	filtered := filterBlocks(blocks, maxBlock)
	if len(filtered) == 0 {
		return nil
	}

	batch, err := conn.PrepareBatch(ctx, `INSERT INTO raw_txs (
		chain_id, hash, block_number, block_hash, block_time, transaction_index,
		nonce, from, to, value, gas_limit, gas_price, gas_used, cumulative_gas_used,
		status, input, signed_chain_id, contract_address, log_count
	)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, nb := range filtered {
		rows, err := BuildTxRows(nb)
		if err != nil {
			return err
		}
		for _, r := range rows {
			err = batch.Append(
				chainID, r.Hash, r.BlockNumber, r.BlockHash, r.BlockTime, r.TransactionIndex,
				r.Nonce, r.From, r.To, r.Value, r.GasLimit, r.GasPrice, r.GasUsed, r.CumulativeGasUsed,
				r.Status, r.Input, r.SignedChainID, r.ContractAddress, r.LogCount,
			)
			if err != nil {
				return fmt.Errorf("failed to append transaction: %w", err)
			}
		}
	}

	return batch.Send()
}

// InsertLogs inserts receipt logs into the raw_logs table
func InsertLogs(ctx context.Context, conn clickhouse.Conn, chainID uint32, blocks []*evmrpc.NormalizedBlock, maxBlock uint64) error {
	filtered := filterBlocks(blocks, maxBlock)
	if len(filtered) == 0 {
		return nil
	}

	batch, err := conn.PrepareBatch(ctx, `INSERT INTO raw_logs (
		chain_id, address, block_number, block_hash, block_time,
		transaction_hash, transaction_index, log_index, tx_from, tx_to,
		topic0, topic1, topic2, topic3, data, removed
	)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, nb := range filtered {
		rows, err := BuildLogRows(nb)
		if err != nil {
			return err
		}
		for _, r := range rows {
			err = batch.Append(
				chainID, r.Address, r.BlockNumber, r.BlockHash, r.BlockTime,
				r.TransactionHash, r.TransactionIndex, r.LogIndex, r.TxFrom, r.TxTo,
				r.Topic0, r.Topic1, r.Topic2, r.Topic3, r.Data, r.Removed,
			)
			if err != nil {
				return fmt.Errorf("failed to append log: %w", err)
			}
		}
	}

	return batch.Send()
}
