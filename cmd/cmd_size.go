package cmd

import (
	"context"
	"evm-wire-codec/pkg/chwrapper"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

type tableSize struct {
	Name       string `ch:"name"`
	Engine     string `ch:"engine"`
	TotalRows  uint64 `ch:"total_rows"`
	TotalBytes uint64 `ch:"total_bytes"`
}

type dirSize struct {
	path  string
	bytes uint64
}

const maxNameLen = 40

func RunSize() {
	ctx := context.Background()

	fmt.Println("=== ClickHouse Table Size ===")
	fmt.Println()

	conn, err := chwrapper.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	tables, err := queryTableSizes(ctx, conn)
	if err != nil {
		log.Fatalf("Failed to show table size: %v", err)
	}
	printTableSizes(os.Stdout, tables)

	statuses, err := chwrapper.ListChainStatus(ctx, conn)
	if err != nil {
		log.Fatalf("Failed to list chain status: %v", err)
	}
	if len(statuses) > 0 {
		fmt.Println()
		fmt.Println("=== Chains ===")
		fmt.Println()
		for _, s := range statuses {
			watermark, err := chwrapper.GetWatermark(ctx, conn, s.ChainID)
			if err != nil {
				log.Fatalf("Failed to read watermark of chain %d: %v", s.ChainID, err)
			}
			fmt.Printf("%-*s synced %s / %s (updated %s)\n", maxNameLen, fmt.Sprintf("%d - %s", s.ChainID, s.Name),
				humanize.Comma(int64(watermark)), humanize.Comma(int64(s.LastBlockOnChain)), humanize.Time(s.LastUpdated))
		}
	}

	fmt.Println()
	fmt.Printf("=== Disk Usage: %s ===\n", CacheDir)
	fmt.Println()
	dirs, err := cacheDirSizes(CacheDir)
	if err != nil {
		log.Fatalf("Failed to show cache size: %v", err)
	}
	printDirSizes(os.Stdout, dirs)
}

func queryTableSizes(ctx context.Context, conn driver.Conn) ([]tableSize, error) {
	var tables []tableSize
	err := conn.Select(ctx, &tables, `
		SELECT
			name,
			engine,
			coalesce(total_rows, 0) AS total_rows,
			coalesce(total_bytes, 0) AS total_bytes
		FROM system.tables
		WHERE database = currentDatabase()
		ORDER BY total_bytes DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	return tables, nil
}

func truncateName(name string) string {
	if len(name) > maxNameLen {
		return name[:maxNameLen-3] + "..."
	}
	return name
}

func printTableSizes(out io.Writer, tables []tableSize) {
	if len(tables) == 0 {
		fmt.Fprintln(out, "No tables found")
		return
	}

	fmt.Fprintf(out, "%-*s %-20s %15s %12s\n", maxNameLen, "Table", "Engine", "Rows", "Size")
	fmt.Fprintln(out, strings.Repeat("-", maxNameLen+50))

	var totalRows, totalBytes uint64
	for _, t := range tables {
		fmt.Fprintf(out, "%-*s %-20s %15s %12s\n", maxNameLen, truncateName(t.Name), t.Engine,
			humanize.Comma(int64(t.TotalRows)), humanize.Bytes(t.TotalBytes))
		totalRows += t.TotalRows
		totalBytes += t.TotalBytes
	}

	fmt.Fprintln(out, strings.Repeat("-", maxNameLen+50))
	fmt.Fprintf(out, "%-*s %-20s %15s %12s\n", maxNameLen, "TOTAL", "", humanize.Comma(int64(totalRows)), humanize.Bytes(totalBytes))
}

// cacheDirSizes returns the size of every per-chain cache directory, largest first.
// A missing root yields no entries.
func cacheDirSizes(rootPath string) ([]dirSize, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", rootPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", rootPath)
	}

	entries, err := os.ReadDir(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var dirs []dirSize
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fullPath := filepath.Join(rootPath, entry.Name())
		size, err := calculateDirSize(fullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate size for %s: %w", fullPath, err)
		}
		dirs = append(dirs, dirSize{path: entry.Name(), bytes: uint64(size)})
	}

	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].bytes > dirs[j].bytes
	})
	return dirs, nil
}

func printDirSizes(out io.Writer, dirs []dirSize) {
	if len(dirs) == 0 {
		fmt.Fprintln(out, "No cache directories found")
		return
	}

	fmt.Fprintf(out, "%-*s %12s\n", maxNameLen, "Chain", "Size")
	fmt.Fprintln(out, strings.Repeat("-", maxNameLen+13))

	var total uint64
	for _, d := range dirs {
		fmt.Fprintf(out, "%-*s %12s\n", maxNameLen, d.path, humanize.Bytes(d.bytes))
		total += d.bytes
	}

	fmt.Fprintln(out, strings.Repeat("-", maxNameLen+13))
	fmt.Fprintf(out, "%-*s %12s\n", maxNameLen, "TOTAL", humanize.Bytes(total))
}

func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
