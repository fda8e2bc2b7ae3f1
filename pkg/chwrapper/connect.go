package chwrapper

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/kelseyhightower/envconfig"
)

// Config is read from CLICKHOUSE_* environment variables.
type Config struct {
	Addr        string        `default:"localhost:9000"`
	Database    string        `default:"default"`
	Username    string        `default:"default"`
	Password    string
	DialTimeout time.Duration `split_words:"true" default:"10s"`
}

// LoadConfig reads the connection settings from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("clickhouse", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read clickhouse config: %w", err)
	}
	return cfg, nil
}

// Connect opens a native-protocol connection and checks that the server answers.
func Connect(ctx context.Context) (driver.Conn, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 300,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse at %s: %w", cfg.Addr, err)
	}

	return conn, nil
}
