package chwrapper

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"CLICKHOUSE_ADDR", "CLICKHOUSE_DATABASE", "CLICKHOUSE_USERNAME", "CLICKHOUSE_PASSWORD", "CLICKHOUSE_DIAL_TIMEOUT"} {
		t.Setenv(key, "") // restored after the test
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.Addr)
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CLICKHOUSE_ADDR", "ch.internal:9440")
	t.Setenv("CLICKHOUSE_DATABASE", "evm")
	t.Setenv("CLICKHOUSE_USERNAME", "ingest")
	t.Setenv("CLICKHOUSE_PASSWORD", "hunter2")
	t.Setenv("CLICKHOUSE_DIAL_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, Config{
		Addr:        "ch.internal:9440",
		Database:    "evm",
		Username:    "ingest",
		Password:    "hunter2",
		DialTimeout: 3 * time.Second,
	}, cfg)

	t.Setenv("CLICKHOUSE_DIAL_TIMEOUT", "soon")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
-- leading comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- only a comment;
CREATE TABLE b (
    y UInt8 -- trailing
) ENGINE = Memory;
`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestRawTablesSchema(t *testing.T) {
	stmts := splitStatements(rawTablesSQL)
	require.Len(t, stmts, 5)
	for _, table := range []string{"raw_blocks", "raw_txs", "raw_logs", "sync_watermark", "chain_status"} {
		found := false
		for _, stmt := range stmts {
			if containsTable(stmt, table) {
				found = true
			}
		}
		assert.True(t, found, "missing CREATE TABLE for %s", table)
	}
	assert.ElementsMatch(t, []string{"raw_blocks", "raw_txs", "raw_logs"}, RawTables)
}

func containsTable(stmt, table string) bool {
	return strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" ")
}
