package cmd

import (
	"evm-wire-codec/pkg/evmsyncer"
	"evm-wire-codec/pkg/ingest/cache"
	"fmt"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"gopkg.in/yaml.v3"
)

const (
	// CacheDir is where per-chain pebble caches live
	CacheDir = "./rpc_cache"
	// ConfigPath is the chain list read by cache and ingest
	ConfigPath = "config.yaml"
)

// ChainConfig describes one EVM chain to sync
type ChainConfig struct {
	ChainID        uint32 `yaml:"chainID"`
	RpcURL         string `yaml:"rpcURL"`
	StartBlock     int64  `yaml:"startBlock"`
	FetchBatchSize int    `yaml:"fetchBatchSize"`
	MaxConcurrency int    `yaml:"maxConcurrency"`
	Name           string `yaml:"name"`
}

// Syncer is a long-running chain ingestion loop
type Syncer interface {
	Start() error
	Wait()
	Stop()
	Err() error
}

// LoadConfig loads and parses the YAML configuration file
func LoadConfig(path string) ([]ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configs []ChainConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	seen := make(map[uint32]bool)
	for i, cfg := range configs {
		if cfg.ChainID == 0 {
			return nil, fmt.Errorf("chain at index %d: chainID cannot be 0", i)
		}
		if seen[cfg.ChainID] {
			return nil, fmt.Errorf("chain at index %d: duplicate chainID %d", i, cfg.ChainID)
		}
		seen[cfg.ChainID] = true
		if cfg.RpcURL == "" {
			return nil, fmt.Errorf("chain at index %d: rpcURL is required", i)
		}
		if cfg.Name == "" {
			return nil, fmt.Errorf("chain at index %d: name is required", i)
		}
		if cfg.StartBlock < 0 {
			return nil, fmt.Errorf("chain at index %d: startBlock cannot be negative", i)
		}
	}

	return configs, nil
}

// CreateSyncer creates a ClickHouse syncer for one chain
func CreateSyncer(cfg ChainConfig, conn driver.Conn, cacheInstance *cache.Cache) (Syncer, error) {
	return evmsyncer.NewChainSyncer(evmsyncer.Config{
		ChainID:        cfg.ChainID,
		RpcURL:         cfg.RpcURL,
		StartBlock:     cfg.StartBlock,
		MaxConcurrency: cfg.MaxConcurrency,
		CHConn:         conn,
		Cache:          cacheInstance,
		FetchBatchSize: cfg.FetchBatchSize,
		Name:           cfg.Name,
	})
}
