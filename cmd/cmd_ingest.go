package cmd

import (
	"context"
	"evm-wire-codec/pkg/chwrapper"
	"evm-wire-codec/pkg/ingest/cache"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
)

func RunIngest() {
	log.Println("Starting ingest...")

	configs, err := LoadConfig(ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(configs) == 0 {
		log.Fatalf("No chain configurations found in %s", ConfigPath)
	}

	ctx := context.Background()
	conn, err := chwrapper.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer conn.Close()

	if err := chwrapper.CreateTables(ctx, conn); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	var (
		wg      sync.WaitGroup
		syncers []Syncer
	)
	for _, cfg := range configs {
		cacheInstance, err := cache.New(CacheDir, cfg.ChainID)
		if err != nil {
			log.Fatalf("Failed to create cache for chain %d: %v", cfg.ChainID, err)
		}
		defer cacheInstance.Close()

		syncer, err := CreateSyncer(cfg, conn, cacheInstance)
		if err != nil {
			log.Fatalf("Failed to create syncer for chain %d: %v", cfg.ChainID, err)
		}
		syncers = append(syncers, syncer)

		wg.Add(1)
		go func(s Syncer, chainCfg ChainConfig) {
			defer wg.Done()
			if err := s.Start(); err != nil {
				log.Errorf("[Chain %d - %s] Failed to start syncer: %v", chainCfg.ChainID, chainCfg.Name, err)
				return
			}
			s.Wait()
			if err := s.Err(); err != nil {
				log.Errorf("[Chain %d - %s] Syncer stopped: %v", chainCfg.ChainID, chainCfg.Name, err)
				s.Stop()
			}
		}(syncer, cfg)

		log.Printf("[Chain %d - %s] Started syncer", cfg.ChainID, cfg.Name)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received %s, stopping %d syncers...", sig, len(syncers))
		for _, s := range syncers {
			s.Stop()
		}
		<-done
	case <-done:
	}

	log.Println("Ingest stopped")
}
