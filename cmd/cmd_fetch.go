package cmd

import (
	"context"
	"evm-wire-codec/pkg/evmrpc"
	"evm-wire-codec/pkg/ingest/cache"
	"evm-wire-codec/pkg/web3"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

const fetchTimeout = 60 * time.Second

// FetchOptions selects the block RunFetch prints. A negative Block means the chain
// head. With CacheDir set the block is read through the cache of ChainID.
type FetchOptions struct {
	RpcURL   string
	Block    int64
	CacheDir string
	ChainID  uint32
}

// RunFetch fetches one block with its receipts, decodes both and prints a summary.
func RunFetch(opts FetchOptions, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	var blockCache *cache.Cache
	if opts.CacheDir != "" {
		c, err := cache.New(opts.CacheDir, opts.ChainID)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer c.Close()
		blockCache = c
	}

	fetcher := evmrpc.NewFetcher(evmrpc.FetcherOptions{
		RpcURL:         opts.RpcURL,
		ChainID:        opts.ChainID,
		ChainName:      "fetch",
		MaxConcurrency: 2,
		BatchSize:      1,
		Cache:          blockCache,
	})
	defer fetcher.Close()

	blockNum := opts.Block
	if blockNum < 0 {
		latest, err := fetcher.GetLatestBlock(ctx)
		if err != nil {
			return fmt.Errorf("failed to get latest block: %w", err)
		}
		blockNum = latest
	}

	log.Debugf("Fetching block %d from %s", blockNum, opts.RpcURL)
	block, err := fetcher.FetchBlock(ctx, blockNum)
	if err != nil {
		return fmt.Errorf("failed to fetch block %d: %w", blockNum, err)
	}

	printBlockSummary(out, block)
	return nil
}

func printBlockSummary(out io.Writer, nb *evmrpc.NormalizedBlock) {
	b := nb.Block

	var logs, failed, deployments int
	for _, rc := range nb.Receipts {
		logs += len(rc.Logs)
		if rc.Status == web3.StatusFailed {
			failed++
		}
		if rc.ContractAddress != nil {
			deployments++
		}
	}

	fmt.Fprintf(out, "Block:        %s\n", humanize.BigComma(b.Number))
	fmt.Fprintf(out, "Hash:         0x%x\n", b.Hash)
	fmt.Fprintf(out, "Time:         %s (%s)\n", b.Timestamp.Format(time.RFC3339), humanize.Time(b.Timestamp))
	if b.Miner != nil {
		fmt.Fprintf(out, "Miner:        %s\n", b.Miner.Common().Hex())
	}
	fmt.Fprintf(out, "Gas used:     %s / %s\n", humanize.BigComma(b.GasUsed), humanize.BigComma(b.GasLimit))
	if b.BaseFeePerGas != nil {
		fmt.Fprintf(out, "Base fee:     %s wei\n", humanize.BigComma(b.BaseFeePerGas))
	}
	fmt.Fprintf(out, "Size:         %s\n", humanize.Bytes(b.Size.Uint64()))
	fmt.Fprintf(out, "Transactions: %d (%d failed, %d deployments)\n", len(b.Transactions), failed, deployments)
	fmt.Fprintf(out, "Logs:         %d\n", logs)
	fmt.Fprintf(out, "Uncles:       %d\n", len(b.Uncles))
}
