package evmsyncer

import (
	"context"
	"errors"
	"evm-wire-codec/pkg/chwrapper"
	"evm-wire-codec/pkg/evmrpc"
	"evm-wire-codec/pkg/ingest/cache"
	"evm-wire-codec/pkg/web3"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// BufferSize is the maximum number of batches that can be buffered in the channel
	BufferSize = 20_000
	// FlushInterval is how often to flush blocks to ClickHouse
	FlushInterval = 1 * time.Second
	// PollInterval is how long to wait for new blocks once caught up
	PollInterval = 2 * time.Second
	// RetryDelay is the pause before refetching a range that failed
	RetryDelay = 1 * time.Second
	// MaxDecodeAttempts bounds how often a range that the node serves but the codec
	// rejects is refetched before the syncer gives up
	MaxDecodeAttempts = 3
)

// ErrUndecodableRange stops a syncer whose next block range keeps failing to decode.
var ErrUndecodableRange = errors.New("undecodable block range")

// Config holds configuration for ChainSyncer
type Config struct {
	ChainID        uint32
	RpcURL         string
	StartBlock     int64        // Starting block number when no watermark exists, default 1
	MaxConcurrency int          // Maximum concurrent RPC requests, default 20
	FetchBatchSize int          // Blocks per fetch, default 500
	CHConn         driver.Conn  // ClickHouse connection
	Cache          *cache.Cache // Optional block cache
	Name           string       // Chain name for display and tracking
}

// ChainSyncer streams decoded blocks of one chain into ClickHouse
type ChainSyncer struct {
	chainId        uint32
	chainName      string
	fetcher        *evmrpc.Fetcher
	conn           driver.Conn
	blockChan      chan []*evmrpc.NormalizedBlock // Bounded channel for backpressure
	watermark      uint64                         // Highest block written to every table
	startBlock     int64
	fetchBatchSize int
	flushInterval  time.Duration
	retryDelay     time.Duration

	// Max block numbers in each table (queried once at startup)
	maxBlockBlocks       uint64
	maxBlockTransactions uint64
	maxBlockLogs         uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	err    error // Set when the syncer stopped on its own

	// Progress tracking
	mu            sync.Mutex
	blocksFetched int64
	blocksWritten int64
	startTime     time.Time
}

// NewChainSyncer creates a new chain syncer
func NewChainSyncer(cfg Config) (*ChainSyncer, error) {
	if cfg.CHConn == nil {
		return nil, fmt.Errorf("chain %d: clickhouse connection is required", cfg.ChainID)
	}
	if cfg.FetchBatchSize == 0 {
		cfg.FetchBatchSize = 500
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 20
	}
	if cfg.StartBlock == 0 {
		cfg.StartBlock = 1
	}

	fetcher := evmrpc.NewFetcher(evmrpc.FetcherOptions{
		RpcURL:         cfg.RpcURL,
		ChainID:        cfg.ChainID,
		ChainName:      cfg.Name,
		MaxConcurrency: cfg.MaxConcurrency,
		BatchSize:      10,
		Cache:          cfg.Cache,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &ChainSyncer{
		chainId:        cfg.ChainID,
		chainName:      cfg.Name,
		fetcher:        fetcher,
		conn:           cfg.CHConn,
		blockChan:      make(chan []*evmrpc.NormalizedBlock, BufferSize),
		startBlock:     cfg.StartBlock,
		fetchBatchSize: cfg.FetchBatchSize,
		flushInterval:  FlushInterval,
		retryDelay:     RetryDelay,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}, nil
}

// Start begins syncing
func (cs *ChainSyncer) Start() error {
	log.Infof("[Chain %d - %s] Starting syncer...", cs.chainId, cs.chainName)

	startBlock, err := cs.getStartingBlock()
	if err != nil {
		return fmt.Errorf("failed to determine starting block: %w", err)
	}

	for _, t := range []struct {
		table string
		dst   *uint64
	}{
		{"raw_blocks", &cs.maxBlockBlocks},
		{"raw_txs", &cs.maxBlockTransactions},
		{"raw_logs", &cs.maxBlockLogs},
	} {
		if *t.dst, err = chwrapper.GetLatestBlockForChain(cs.ctx, cs.conn, t.table, cs.chainId); err != nil {
			return fmt.Errorf("failed to get max block from %s: %w", t.table, err)
		}
	}

	latestBlock, err := cs.fetcher.GetLatestBlock(cs.ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest block: %w", err)
	}

	log.Infof("[Chain %d - %s] Starting from block %d, latest block on chain: %d", cs.chainId, cs.chainName, startBlock, latestBlock)

	if err := chwrapper.UpsertChainStatus(cs.ctx, cs.conn, cs.chainId, cs.chainName, uint64(latestBlock)); err != nil {
		return fmt.Errorf("failed to upsert chain status: %w", err)
	}

	cs.wg.Add(3)
	go cs.fetcherLoop(startBlock, latestBlock)
	go cs.writerLoop()
	go cs.printProgress()

	return nil
}

// Stop cancels fetching, flushes what was already fetched and waits for the loops to exit
func (cs *ChainSyncer) Stop() {
	log.Infof("[Chain %d - %s] Stopping syncer...", cs.chainId, cs.chainName)
	cs.cancel()
	cs.wg.Wait()
	cs.fetcher.Close()
	log.Infof("[Chain %d - %s] Syncer stopped", cs.chainId, cs.chainName)
}

// Wait blocks until syncer completes
func (cs *ChainSyncer) Wait() {
	cs.wg.Wait()
}

// Err returns the error that stopped the syncer, or nil after a regular Stop
func (cs *ChainSyncer) Err() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.err
}

func (cs *ChainSyncer) fail(err error) {
	cs.mu.Lock()
	cs.err = err
	cs.mu.Unlock()
	cs.cancel()
}

// isDecodeError reports whether err comes from the codec rejecting what the node returned
func isDecodeError(err error) bool {
	return errors.Is(err, web3.ErrInvalidEncoding) || errors.Is(err, web3.ErrMissingOrMismatchedField)
}

func (cs *ChainSyncer) getStartingBlock() (int64, error) {
	watermark, err := chwrapper.GetWatermark(cs.ctx, cs.conn, cs.chainId)
	if err != nil {
		return 0, fmt.Errorf("failed to get watermark: %w", err)
	}
	cs.watermark = watermark
	return nextBlock(watermark, cs.startBlock), nil
}

// nextBlock is the first block to fetch: the configured start when nothing was written yet,
// otherwise the block after the watermark.
func nextBlock(watermark uint64, startBlock int64) int64 {
	if watermark == 0 {
		return startBlock
	}
	return int64(watermark + 1)
}

// fetcherLoop is the producer goroutine that fetches blocks
func (cs *ChainSyncer) fetcherLoop(startBlock, latestBlock int64) {
	defer cs.wg.Done()
	// Closing the channel lets the writer drain and exit
	defer close(cs.blockChan)

	currentBlock := startBlock
	decodeFailures := 0

	for {
		if cs.ctx.Err() != nil {
			return
		}

		if currentBlock > latestBlock {
			select {
			case <-time.After(PollInterval):
			case <-cs.ctx.Done():
				return
			}

			newLatest, err := cs.fetcher.GetLatestBlock(cs.ctx)
			if err != nil {
				log.Warnf("[Chain %d - %s] Error getting latest block: %v", cs.chainId, cs.chainName, err)
				continue
			}

			if err := chwrapper.UpsertChainStatus(cs.ctx, cs.conn, cs.chainId, cs.chainName, uint64(newLatest)); err != nil {
				log.Warnf("[Chain %d - %s] Error updating chain status: %v", cs.chainId, cs.chainName, err)
			}

			if newLatest <= latestBlock {
				continue
			}
			latestBlock = newLatest
		}

		endBlock := currentBlock + int64(cs.fetchBatchSize) - 1
		if endBlock > latestBlock {
			endBlock = latestBlock
		}

		blocks, err := cs.fetcher.FetchBlockRange(cs.ctx, currentBlock, endBlock)
		if err != nil {
			if cs.ctx.Err() != nil {
				return
			}
			log.Errorf("[Chain %d - %s] Error fetching blocks %d-%d: %v", cs.chainId, cs.chainName, currentBlock, endBlock, err)
			if isDecodeError(err) {
				decodeFailures++
				if decodeFailures >= MaxDecodeAttempts {
					cs.fail(fmt.Errorf("%w: blocks %d-%d after %d attempts: %w", ErrUndecodableRange, currentBlock, endBlock, decodeFailures, err))
					return
				}
			} else {
				decodeFailures = 0
			}
			select {
			case <-time.After(cs.retryDelay):
			case <-cs.ctx.Done():
				return
			}
			continue
		}
		decodeFailures = 0

		cs.mu.Lock()
		cs.blocksFetched += int64(len(blocks))
		cs.mu.Unlock()

		// Blocks if the buffer is full
		select {
		case cs.blockChan <- blocks:
			currentBlock = endBlock + 1
		case <-cs.ctx.Done():
			return
		}
	}
}

// writerLoop is the consumer goroutine that writes to ClickHouse
func (cs *ChainSyncer) writerLoop() {
	defer cs.wg.Done()

	var buffer []*evmrpc.NormalizedBlock
	var lastFlushTime time.Time
	flushTimer := time.NewTimer(cs.flushInterval)
	defer flushTimer.Stop()

	// flush writes buffered blocks and ensures minimum interval between writes
	flush := func() time.Duration {
		if len(buffer) == 0 {
			return cs.flushInterval
		}

		start := time.Now()
		if err := cs.writeBlocks(buffer); err != nil {
			// The buffer is kept and retried on the next tick
			log.Errorf("[Chain %d - %s] Error writing blocks: %v", cs.chainId, cs.chainName, err)
			return cs.flushInterval
		}

		elapsed := time.Since(start)
		if elapsed > 10*time.Second {
			log.Warnf("[Chain %d - %s] Write took %v, exceeds 10 second threshold", cs.chainId, cs.chainName, elapsed)
		}

		cs.mu.Lock()
		cs.blocksWritten += int64(len(buffer))
		cs.mu.Unlock()
		buffer = nil

		lastFlushTime = start
		nextFlush := cs.flushInterval - elapsed
		if nextFlush < 0 {
			nextFlush = 0
		}
		return nextFlush
	}

	for {
		select {
		case blocks, ok := <-cs.blockChan:
			if !ok {
				flush()
				return
			}

			buffer = append(buffer, blocks...)

			if !lastFlushTime.IsZero() && time.Since(lastFlushTime) >= cs.flushInterval {
				flushTimer.Stop()
				flushTimer.Reset(flush())
			}

		case <-flushTimer.C:
			flushTimer.Reset(flush())
		}
	}
}

// writeBlocks writes blocks to all tables in parallel and then advances the watermark
func (cs *ChainSyncer) writeBlocks(blocks []*evmrpc.NormalizedBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	// Not tied to cs.ctx so that a final flush still completes during Stop
	g, gctx := errgroup.WithContext(context.Background())
	start := time.Now()

	g.Go(func() error {
		return InsertBlocks(gctx, cs.conn, cs.chainId, blocks, cs.maxBlockBlocks)
	})
	g.Go(func() error {
		return InsertTransactions(gctx, cs.conn, cs.chainId, blocks, cs.maxBlockTransactions)
	})
	g.Go(func() error {
		return InsertLogs(gctx, cs.conn, cs.chainId, blocks, cs.maxBlockLogs)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to insert blocks: %w", err)
	}

	txCount := 0
	for _, b := range blocks {
		txCount += len(b.Block.Transactions)
	}
	log.Debugf("[Chain %d - %s] Inserted %d blocks and %d txs in %v", cs.chainId, cs.chainName, len(blocks), txCount, time.Since(start))

	maxBlock := highestBlock(blocks)
	if maxBlock > cs.watermark {
		// gctx is canceled once Wait returns
		if err := chwrapper.SetWatermark(context.Background(), cs.conn, cs.chainId, maxBlock); err != nil {
			return fmt.Errorf("failed to update watermark: %w", err)
		}
		cs.mu.Lock()
		cs.watermark = maxBlock
		cs.mu.Unlock()
	}

	return nil
}

func highestBlock(blocks []*evmrpc.NormalizedBlock) uint64 {
	var maxBlock uint64
	for _, b := range blocks {
		num, err := blockNumber(b.Block)
		if err != nil {
			continue
		}
		if num > maxBlock {
			maxBlock = num
		}
	}
	return maxBlock
}

// printProgress prints sync progress periodically
func (cs *ChainSyncer) printProgress() {
	defer cs.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cs.ctx.Done():
			return
		case <-ticker.C:
			cs.mu.Lock()
			fetched := cs.blocksFetched
			written := cs.blocksWritten
			watermark := cs.watermark
			cs.mu.Unlock()

			elapsed := time.Since(cs.startTime)
			fetchRate := float64(fetched) / elapsed.Seconds()
			writeRate := float64(written) / elapsed.Seconds()

			log.Infof("[Chain %d - %s] Fetched: %s (%.1f/s) | Written: %s (%.1f/s) | Lag: %d | Watermark: %s",
				cs.chainId, cs.chainName, humanize.Comma(fetched), fetchRate, humanize.Comma(written), writeRate,
				fetched-written, humanize.Comma(int64(watermark)))
		}
	}
}
