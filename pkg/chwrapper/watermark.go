package chwrapper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// GetWatermark returns the highest fully written block for a chain, or 0 if not set
func GetWatermark(ctx context.Context, conn driver.Conn, chainID uint32) (uint64, error) {
	query := "SELECT block_number FROM sync_watermark WHERE chain_id = ?"

	var blockNumber uint64
	if err := conn.QueryRow(ctx, query, chainID).Scan(&blockNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read watermark for chain %d: %w", chainID, err)
	}

	return blockNumber, nil
}

// SetWatermark updates the watermark to the given block number for a specific chain
func SetWatermark(ctx context.Context, conn driver.Conn, chainID uint32, blockNumber uint64) error {
	query := "INSERT INTO sync_watermark (chain_id, block_number) VALUES (?, ?)"

	if err := conn.Exec(ctx, query, chainID, blockNumber); err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}

	return nil
}

// GetLatestBlockForChain returns max(block_number) of a raw table for one chain, 0 when empty
func GetLatestBlockForChain(ctx context.Context, conn driver.Conn, table string, chainID uint32) (uint64, error) {
	query := fmt.Sprintf("SELECT max(block_number) FROM %s WHERE chain_id = ?", table)

	var maxVal uint64
	if err := conn.QueryRow(ctx, query, chainID).Scan(&maxVal); err != nil {
		return 0, fmt.Errorf("failed to query max(block_number) from %s for chain %d: %w", table, chainID, err)
	}

	return maxVal, nil
}
