package chwrapper

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

//go:embed raw_tables.sql
var rawTablesSQL string

// RawTables hold decoded chain data. The remaining tables track sync progress.
var (
	RawTables  = []string{"raw_blocks", "raw_txs", "raw_logs"}
	MetaTables = []string{"sync_watermark", "chain_status"}
)

func CreateTables(ctx context.Context, conn driver.Conn) error {
	if err := ExecuteSql(ctx, conn, rawTablesSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func ExecuteSql(ctx context.Context, conn driver.Conn, sql string) error {
	for _, stmt := range splitStatements(sql) {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	return nil
}

// splitStatements splits a script on ';' and drops comment-only lines.
func splitStatements(sql string) []string {
	var out []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "--") && trimmed != "" {
				lines = append(lines, line)
			}
		}

		cleanStmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if cleanStmt != "" {
			out = append(out, cleanStmt)
		}
	}
	return out
}

// DropTables drops the given tables if they exist.
func DropTables(ctx context.Context, conn driver.Conn, tables []string) error {
	for _, table := range tables {
		if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}
