package evmrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"evm-wire-codec/pkg/hexcodec"
	"evm-wire-codec/pkg/ingest/cache"
	"evm-wire-codec/pkg/web3"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type FetcherOptions struct {
	RpcURL           string
	ChainID          uint32           // Chain ID for logging
	ChainName        string           // Chain name for logging
	MaxConcurrency   int              // Maximum concurrent RPC requests
	BatchSize        int              // Number of requests per batch
	ProgressCallback ProgressCallback // Optional progress callback
	Cache            *cache.Cache     // Optional cache for complete blocks
}

type Fetcher struct {
	rpcURL     string
	chainID    uint32
	chainName  string
	batchSize  int
	progressCb ProgressCallback
	cache      *cache.Cache

	// Concurrency control
	rpcLimit chan struct{}

	// Cache writer
	cacheWriteCh chan cacheWrite
	cacheWg      sync.WaitGroup
	done         chan struct{}
	closeOnce    sync.Once

	httpClient *http.Client
}

type cacheWrite struct {
	blockNum int64
	block    *NormalizedBlock
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = 100
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}

	transport := &http.Transport{
		MaxIdleConns:        10000,
		MaxIdleConnsPerHost: 10000, // Default is only 2!
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	f := &Fetcher{
		rpcURL:       opts.RpcURL,
		chainID:      opts.ChainID,
		chainName:    opts.ChainName,
		batchSize:    opts.BatchSize,
		progressCb:   opts.ProgressCallback,
		cache:        opts.Cache,
		rpcLimit:     make(chan struct{}, opts.MaxConcurrency),
		cacheWriteCh: make(chan cacheWrite, 1000),
		done:         make(chan struct{}),
		httpClient: &http.Client{
			Timeout:   5 * time.Minute,
			Transport: transport,
		},
	}

	if f.cache != nil {
		numWriters := 4
		for i := 0; i < numWriters; i++ {
			f.cacheWg.Add(1)
			go f.cacheWriter()
		}
	}

	return f
}

// cacheWriter stores fetched blocks in the background. Failures only cost a refetch.
// On Close it drains whatever is already queued.
func (f *Fetcher) cacheWriter() {
	defer f.cacheWg.Done()
	for {
		select {
		case cw := <-f.cacheWriteCh:
			f.writeCache(cw)
		case <-f.done:
			for {
				select {
				case cw := <-f.cacheWriteCh:
					f.writeCache(cw)
				default:
					return
				}
			}
		}
	}
}

func (f *Fetcher) writeCache(cw cacheWrite) {
	data, err := json.Marshal(cw.block)
	if err != nil {
		log.Debugf("[Chain %d - %s] skipping cache write for block %d: %v", f.chainID, f.chainName, cw.blockNum, err)
		return
	}
	if err := f.cache.PutBlock(cw.blockNum, data); err != nil {
		log.Debugf("[Chain %d - %s] cache write for block %d failed: %v", f.chainID, f.chainName, cw.blockNum, err)
	}
}

// batchRpcCall sends a batch of JSON-RPC requests once and returns the responses in request order.
func (f *Fetcher) batchRpcCall(ctx context.Context, requests []jsonRpcRequest) ([]jsonRpcResponse, error) {
	if len(requests) == 0 {
		return []jsonRpcResponse{}, nil
	}

	jsonData, err := json.Marshal(requests)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	select {
	case f.rpcLimit <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-f.rpcLimit }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.rpcURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make batch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("batch request returned HTTP %d", resp.StatusCode)
	}

	var responses []jsonRpcResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&responses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch response: %w", err)
	}

	if len(responses) != len(requests) {
		return nil, fmt.Errorf("batch response count mismatch: sent %d, got %d", len(requests), len(responses))
	}

	// Sort responses by ID to match request order
	sort.Slice(responses, func(i, j int) bool {
		return responses[i].ID < responses[j].ID
	})

	for i, r := range responses {
		if r.ID != requests[i].ID {
			return nil, fmt.Errorf("batch response ID mismatch at index %d: expected %d, got %d", i, requests[i].ID, r.ID)
		}
		if r.Error != nil {
			return nil, fmt.Errorf("%s failed at index %d (ID %d): %w", requests[i].Method, i, r.ID, r.Error)
		}
		if len(r.Result) == 0 {
			return nil, fmt.Errorf("empty result in batch response at index %d (ID %d)", i, r.ID)
		}
	}

	return responses, nil
}

// call issues a single request.
func (f *Fetcher) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	responses, err := f.batchRpcCall(ctx, []jsonRpcRequest{{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}})
	if err != nil {
		return nil, err
	}
	return responses[0].Result, nil
}

func (f *Fetcher) GetLatestBlock(ctx context.Context) (int64, error) {
	result, err := f.call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}

	var blockNumHex string
	if err := json.Unmarshal(result, &blockNumHex); err != nil {
		return 0, fmt.Errorf("failed to unmarshal block number: %w", err)
	}

	blockNum, err := hexcodec.DecodeUint64(blockNumHex)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block number: %w", err)
	}

	return int64(blockNum), nil
}

// GetTransaction fetches a transaction by hash. Pending transactions have no block fields.
func (f *Fetcher) GetTransaction(ctx context.Context, hash []byte) (*web3.TransactionDetails, error) {
	result, err := f.call(ctx, "eth_getTransactionByHash", hexcodec.EncodeBytes(hash))
	if err != nil {
		return nil, err
	}
	if isNull(result) {
		return nil, fmt.Errorf("transaction %s: %w", hexcodec.EncodeBytes(hash), ErrNotFound)
	}

	details, err := web3.DecodeTransactionDetails(result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", hexcodec.EncodeBytes(hash), err)
	}
	return details, nil
}

// GetReceipt fetches the receipt of a transaction. A transaction the node has not
// executed yet gets a placeholder with StatusNotYetProcessed.
func (f *Fetcher) GetReceipt(ctx context.Context, hash []byte) (*web3.TransactionReceipt, error) {
	result, err := f.call(ctx, "eth_getTransactionReceipt", hexcodec.EncodeBytes(hash))
	if err != nil {
		return nil, err
	}
	if isNull(result) {
		return web3.NotYetProcessedReceipt(hash), nil
	}

	receipt, err := web3.DecodeReceipt(result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode receipt %s: %w", hexcodec.EncodeBytes(hash), err)
	}
	return receipt, nil
}

func (f *Fetcher) GetLogs(ctx context.Context, filter LogFilter) ([]web3.EventLog, error) {
	result, err := f.call(ctx, "eth_getLogs", filter.params())
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(result, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
	}

	logs := make([]web3.EventLog, len(items))
	for i, item := range items {
		l, err := web3.DecodeEventLog(item)
		if err != nil {
			return nil, fmt.Errorf("failed to decode log %d: %w", i, err)
		}
		logs[i] = *l
	}
	return logs, nil
}

// SendRawTransaction submits a signed transaction. tx is the decoded form of raw and
// is returned alongside the hash the node reports.
func (f *Fetcher) SendRawTransaction(ctx context.Context, raw []byte, tx *web3.Transaction) (*web3.TransactionSendingResult, error) {
	result, err := f.call(ctx, "eth_sendRawTransaction", hexcodec.EncodeBytes(raw))
	if err != nil {
		return nil, err
	}

	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction hash: %w", err)
	}
	if _, err := hexcodec.DecodeFixedBytes(hash, 32); err != nil {
		return nil, fmt.Errorf("node returned malformed transaction hash %q: %w", hash, err)
	}

	return &web3.TransactionSendingResult{Transaction: tx, Hash: hash}, nil
}

// chunksOf splits a slice into chunks of specified size
func chunksOf[T any](items []T, size int) [][]T {
	if size <= 0 {
		panic("chunk size must be positive")
	}

	var chunks [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// FetchBlockRange fetches all blocks in the range [from, to] inclusive using batch operations
func (f *Fetcher) FetchBlockRange(ctx context.Context, from, to int64) ([]*NormalizedBlock, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range: from %d > to %d", from, to)
	}

	if f.cache == nil {
		return f.fetchBlockRangeUncached(ctx, from, to)
	}

	numBlocks := int(to - from + 1)
	result := make([]*NormalizedBlock, numBlocks)

	cachedData, err := f.cache.GetBlockRange(from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache range: %w", err)
	}

	var missingBlocks []int64
	for i := int64(0); i < int64(numBlocks); i++ {
		blockNum := from + i
		data, ok := cachedData[blockNum]
		if !ok || data == nil {
			missingBlocks = append(missingBlocks, blockNum)
			continue
		}
		var block NormalizedBlock
		if err := json.Unmarshal(data, &block); err != nil {
			log.Warnf("[Chain %d - %s] failed to deserialize cached block %d: %v", f.chainID, f.chainName, blockNum, err)
			missingBlocks = append(missingBlocks, blockNum)
			continue
		}
		result[int(i)] = &block
	}

	if len(missingBlocks) == 0 {
		return result, nil
	}

	fetchedBlocks, err := f.fetchAndCacheMissingBlocks(ctx, missingBlocks)
	if err != nil {
		return nil, err
	}

	for _, blockNum := range missingBlocks {
		block, ok := fetchedBlocks[blockNum]
		if !ok {
			return nil, fmt.Errorf("missing block %d after fetch", blockNum)
		}
		result[int(blockNum-from)] = block
	}

	return result, nil
}

// FetchBlock fetches a single block with its receipts, reading through the cache when one is set
func (f *Fetcher) FetchBlock(ctx context.Context, blockNum int64) (*NormalizedBlock, error) {
	if f.cache == nil {
		blocks, err := f.fetchBlockRangeUncached(ctx, blockNum, blockNum)
		if err != nil {
			return nil, err
		}
		return blocks[0], nil
	}

	data, err := f.cache.GetCompleteBlock(blockNum, func() ([]byte, error) {
		blocks, err := f.fetchBlockRangeUncached(ctx, blockNum, blockNum)
		if err != nil {
			return nil, err
		}
		return json.Marshal(blocks[0])
	})
	if err != nil {
		return nil, err
	}

	var block NormalizedBlock
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached block %d: %w", blockNum, err)
	}
	return &block, nil
}

func (f *Fetcher) fetchBlockRangeUncached(ctx context.Context, from, to int64) ([]*NormalizedBlock, error) {
	blocks, err := f.fetchBlocksBatch(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blocks: %w", err)
	}

	receipts, err := f.fetchReceiptsBatch(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receipts: %w", err)
	}

	result := make([]*NormalizedBlock, len(blocks))
	for i, block := range blocks {
		blockNum := from + int64(i)
		txs := block.FullTransactions()
		if len(txs) != len(block.Transactions) {
			return nil, fmt.Errorf("block %d: node returned transaction hashes instead of bodies", blockNum)
		}
		if len(receipts[i]) != len(txs) {
			return nil, fmt.Errorf("block %d: %d receipts for %d transactions", blockNum, len(receipts[i]), len(txs))
		}
		result[i] = &NormalizedBlock{
			Block:    block,
			Receipts: receipts[i],
		}
	}

	return result, nil
}

// fetchAndCacheMissingBlocks fetches missing blocks one contiguous range at a time and queues them for caching
func (f *Fetcher) fetchAndCacheMissingBlocks(ctx context.Context, missingBlocks []int64) (map[int64]*NormalizedBlock, error) {
	sort.Slice(missingBlocks, func(i, j int) bool {
		return missingBlocks[i] < missingBlocks[j]
	})

	result := make(map[int64]*NormalizedBlock)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range findContiguousRanges(missingBlocks) {
		from, to := r[0], r[1]
		g.Go(func() error {
			blocks, err := f.fetchBlockRangeUncached(gctx, from, to)
			if err != nil {
				return err
			}

			for i, block := range blocks {
				blockNum := from + int64(i)

				mu.Lock()
				result[blockNum] = block
				mu.Unlock()

				// Wait for the cache writers instead of dropping the block
				select {
				case f.cacheWriteCh <- cacheWrite{blockNum: blockNum, block: block}:
				case <-f.done:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// findContiguousRanges finds contiguous block ranges from a sorted list
func findContiguousRanges(blocks []int64) [][2]int64 {
	if len(blocks) == 0 {
		return nil
	}

	var ranges [][2]int64
	start := blocks[0]
	end := blocks[0]

	for i := 1; i < len(blocks); i++ {
		if blocks[i] == end+1 {
			end = blocks[i]
		} else {
			ranges = append(ranges, [2]int64{start, end})
			start = blocks[i]
			end = blocks[i]
		}
	}
	ranges = append(ranges, [2]int64{start, end})

	return ranges
}

// perBlockBatch runs one request per block in [from, to] through concurrent batches and
// hands each result to handle with its offset from `from`.
func (f *Fetcher) perBlockBatch(ctx context.Context, phase, method string, from, to int64, params func(blockNum int64) []interface{}, handle func(idx int, result json.RawMessage) (int, error)) error {
	numBlocks := int(to - from + 1)

	var allRequests []jsonRpcRequest
	for i := 0; i < numBlocks; i++ {
		allRequests = append(allRequests, jsonRpcRequest{
			Jsonrpc: "2.0",
			Method:  method,
			Params:  params(from + int64(i)),
			ID:      i,
		})
	}

	var mu sync.Mutex
	var completed int64

	g, gctx := errgroup.WithContext(ctx)
	for batchIdx, batch := range chunksOf(allRequests, f.batchSize) {
		idx, requests := batchIdx, batch
		g.Go(func() error {
			responses, err := f.batchRpcCall(gctx, requests)
			if err != nil {
				return fmt.Errorf("%s batch %d failed: %w", phase, idx, err)
			}

			batchTxCount := 0
			for _, resp := range responses {
				n, err := handle(resp.ID, resp.Result)
				if err != nil {
					return err
				}
				batchTxCount += n
			}

			mu.Lock()
			completed += int64(len(responses))
			if f.progressCb != nil {
				f.progressCb(phase, completed, int64(numBlocks), batchTxCount)
			}
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

func (f *Fetcher) fetchBlocksBatch(ctx context.Context, from, to int64) ([]*web3.Block, error) {
	blocks := make([]*web3.Block, int(to-from+1))

	err := f.perBlockBatch(ctx, "blocks", "eth_getBlockByNumber", from, to,
		func(blockNum int64) []interface{} {
			return []interface{}{hexcodec.EncodeUint64(uint64(blockNum)), true} // true for full transactions
		},
		func(idx int, result json.RawMessage) (int, error) {
			blockNum := from + int64(idx)
			if isNull(result) {
				return 0, fmt.Errorf("block %d: %w", blockNum, ErrNotFound)
			}
			block, err := web3.DecodeBlock(result)
			if err != nil {
				return 0, fmt.Errorf("failed to decode block %d: %w", blockNum, err)
			}
			// Each goroutine writes distinct indexes
			blocks[idx] = block
			return len(block.Transactions), nil
		})
	if err != nil {
		return nil, err
	}

	return blocks, nil
}

func (f *Fetcher) fetchReceiptsBatch(ctx context.Context, from, to int64) ([][]*web3.TransactionReceipt, error) {
	receipts := make([][]*web3.TransactionReceipt, int(to-from+1))

	err := f.perBlockBatch(ctx, "receipts", "eth_getBlockReceipts", from, to,
		func(blockNum int64) []interface{} {
			return []interface{}{hexcodec.EncodeUint64(uint64(blockNum))}
		},
		func(idx int, result json.RawMessage) (int, error) {
			blockNum := from + int64(idx)
			if isNull(result) {
				return 0, fmt.Errorf("receipts of block %d: %w", blockNum, ErrNotFound)
			}
			var items []json.RawMessage
			if err := json.Unmarshal(result, &items); err != nil {
				return 0, fmt.Errorf("failed to unmarshal receipts of block %d: %w", blockNum, err)
			}
			blockReceipts := make([]*web3.TransactionReceipt, len(items))
			for i, item := range items {
				rc, err := web3.DecodeReceipt(item)
				if err != nil {
					return 0, fmt.Errorf("failed to decode receipt %d of block %d: %w", i, blockNum, err)
				}
				blockReceipts[i] = rc
			}
			receipts[idx] = blockReceipts
			return len(items), nil
		})
	if err != nil {
		return nil, err
	}

	return receipts, nil
}

// Close flushes queued cache writes and stops the writers.
func (f *Fetcher) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
		f.cacheWg.Wait()
	})
}
