package cmd

import (
	"context"
	"evm-wire-codec/pkg/evmrpc"
	"evm-wire-codec/pkg/ingest/cache"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

const (
	cacheCheckpointInterval = int64(1000)
	cacheParallelRanges     = 10
)

func RunCache() {
	log.Println("Starting cache-only mode (no ClickHouse)...")

	configs, err := LoadConfig(ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(configs) == 0 {
		log.Fatalf("No chain configurations found in %s", ConfigPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, cfg := range configs {
		wg.Add(1)
		go func(chainCfg ChainConfig) {
			defer wg.Done()
			if err := CacheChain(ctx, chainCfg, CacheDir); err != nil {
				log.Errorf("[Chain %d - %s] Cache failed: %v", chainCfg.ChainID, chainCfg.Name, err)
			}
		}(cfg)
	}

	wg.Wait()
	log.Println("Cache complete!")
}

// CacheChain fills the pebble cache of one chain from its checkpoint up to the chain head.
func CacheChain(ctx context.Context, cfg ChainConfig, dir string) error {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = 100
	}
	fetchBatchSize := cfg.FetchBatchSize
	if fetchBatchSize == 0 {
		fetchBatchSize = 1000
	}

	log.Printf("[Chain %d - %s] Opening cache at %s/%d", cfg.ChainID, cfg.Name, dir, cfg.ChainID)
	cacheInstance, err := cache.New(dir, cfg.ChainID)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer cacheInstance.Close()

	checkpoint, err := cacheInstance.GetCheckpoint()
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if checkpoint >= 0 {
		log.Printf("[Chain %d - %s] Found checkpoint at block %d, resuming from there", cfg.ChainID, cfg.Name, checkpoint)
	}

	fetcher := evmrpc.NewFetcher(evmrpc.FetcherOptions{
		RpcURL:         cfg.RpcURL,
		ChainID:        cfg.ChainID,
		ChainName:      cfg.Name,
		MaxConcurrency: maxConcurrency,
		BatchSize:      fetchBatchSize,
		Cache:          cacheInstance,
	})
	// Flush queued writes before the cache closes
	defer fetcher.Close()

	endBlock, err := fetcher.GetLatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest block: %w", err)
	}

	originalStartBlock := cfg.StartBlock
	if originalStartBlock == 0 {
		originalStartBlock = 1
	}
	startBlock := originalStartBlock
	if checkpoint >= startBlock {
		startBlock = checkpoint + 1
	}

	if startBlock > endBlock {
		log.Printf("[Chain %d - %s] Already cached up to block %d (head: %d). Nothing to do!",
			cfg.ChainID, cfg.Name, checkpoint, endBlock)
		return nil
	}

	totalBlocks := endBlock - originalStartBlock + 1
	log.Printf("[Chain %d - %s] Caching blocks %d to %d (%s of %s blocks remaining)",
		cfg.ChainID, cfg.Name, startBlock, endBlock, humanize.Comma(endBlock-startBlock+1), humanize.Comma(totalBlocks))

	var blocksCached atomic.Int64
	startTime := time.Now()
	alreadyCached := startBlock - originalStartBlock

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cached := blocksCached.Load()
				soFar := alreadyCached + cached
				elapsed := time.Since(startTime)
				rate := float64(cached) / elapsed.Seconds()
				progress := float64(soFar) / float64(totalBlocks) * 100

				var etaStr string
				if remaining := totalBlocks - soFar; rate > 0 && remaining > 0 {
					eta := time.Duration(float64(remaining) / rate * float64(time.Second))
					etaStr = fmt.Sprintf(" | ETA: %s", eta.Round(time.Second))
				}
				log.Printf("[Chain %d - %s] Progress: %s/%s blocks (%.1f%%) | Rate: %.1f blocks/sec | Elapsed: %s%s",
					cfg.ChainID, cfg.Name, humanize.Comma(soFar), humanize.Comma(totalBlocks), progress, rate, elapsed.Round(time.Second), etaStr)
			case <-done:
				return
			}
		}
	}()

	tracker := newCheckpointTracker(startBlock - 1)
	semaphore := make(chan struct{}, cacheParallelRanges)
	var fetchWg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for current := startBlock; current <= endBlock && ctx.Err() == nil; {
		batchEnd := min(current+int64(fetchBatchSize)-1, endBlock)

		fetchWg.Add(1)
		semaphore <- struct{}{}
		go func(from, to int64) {
			defer fetchWg.Done()
			defer func() { <-semaphore }()

			blocks, err := fetcher.FetchBlockRange(ctx, from, to)
			if err != nil {
				errOnce.Do(func() { firstErr = fmt.Errorf("blocks %d-%d: %w", from, to, err) })
				return
			}
			blocksCached.Add(int64(len(blocks)))

			if cp, ok := tracker.complete(from, to); ok && cp-tracker.lastSaved() >= cacheCheckpointInterval {
				saveCheckpoint(cacheInstance, cfg, tracker, cp)
			}
		}(current, batchEnd)

		current = batchEnd + 1
	}

	fetchWg.Wait()
	close(done)
	fetcher.Close()

	// Only the contiguous prefix is safe to record
	if cp := tracker.contiguous(); cp > tracker.lastSaved() {
		saveCheckpoint(cacheInstance, cfg, tracker, cp)
	}

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}

	elapsed := time.Since(startTime)
	finalCount := blocksCached.Load()
	log.Printf("[Chain %d - %s] Cached %s blocks in %s (avg %.1f blocks/sec)",
		cfg.ChainID, cfg.Name, humanize.Comma(finalCount), elapsed.Round(time.Second), float64(finalCount)/elapsed.Seconds())
	log.Debugf("[Chain %d - %s] Cache metrics:\n%s", cfg.ChainID, cfg.Name, cacheInstance.GetMetrics())

	return firstErr
}

func saveCheckpoint(c *cache.Cache, cfg ChainConfig, tracker *checkpointTracker, blockNum int64) {
	if err := c.SetCheckpoint(blockNum); err != nil {
		log.Errorf("[Chain %d - %s] Failed to save checkpoint at block %d: %v", cfg.ChainID, cfg.Name, blockNum, err)
		return
	}
	tracker.saved(blockNum)
	log.Printf("[Chain %d - %s] Checkpoint saved at block %s", cfg.ChainID, cfg.Name, humanize.Comma(blockNum))
}

// checkpointTracker records finished ranges, which complete out of order, and
// reports the highest block below which every block is cached.
type checkpointTracker struct {
	mu      sync.Mutex
	prefix  int64
	pending map[int64]int64 // from -> to
	last    int64
}

func newCheckpointTracker(prefix int64) *checkpointTracker {
	return &checkpointTracker{prefix: prefix, pending: make(map[int64]int64), last: prefix}
}

// complete marks [from, to] done and returns the contiguous prefix when it advanced.
func (t *checkpointTracker) complete(from, to int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending[from] = to
	before := t.prefix
	for {
		end, ok := t.pending[t.prefix+1]
		if !ok {
			break
		}
		delete(t.pending, t.prefix+1)
		t.prefix = end
	}
	return t.prefix, t.prefix > before
}

func (t *checkpointTracker) contiguous() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prefix
}

func (t *checkpointTracker) lastSaved() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *checkpointTracker) saved(blockNum int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if blockNum > t.last {
		t.last = blockNum
	}
}
