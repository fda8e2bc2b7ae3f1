package chwrapper

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ChainStatus is one row of chain_status.
type ChainStatus struct {
	ChainID          uint32    `ch:"chain_id"`
	Name             string    `ch:"name"`
	LastUpdated      time.Time `ch:"last_updated"`
	LastBlockOnChain uint64    `ch:"last_block_on_chain"`
}

// UpsertChainStatus records the chain head seen by the node. The newest row per chain wins on merge.
func UpsertChainStatus(ctx context.Context, conn driver.Conn, chainID uint32, name string, lastBlockOnChain uint64) error {
	query := `
	INSERT INTO chain_status (chain_id, name, last_updated, last_block_on_chain)
	VALUES (?, ?, ?, ?)`

	now := time.Now().UTC()
	if err := conn.Exec(ctx, query, chainID, name, now, lastBlockOnChain); err != nil {
		return fmt.Errorf("failed to upsert chain status: %w", err)
	}

	return nil
}

// ListChainStatus returns the latest status row of every chain.
func ListChainStatus(ctx context.Context, conn driver.Conn) ([]ChainStatus, error) {
	var rows []ChainStatus
	err := conn.Select(ctx, &rows, `
	SELECT chain_id, name, last_updated, last_block_on_chain
	FROM chain_status FINAL
	ORDER BY chain_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chain status: %w", err)
	}
	return rows, nil
}
