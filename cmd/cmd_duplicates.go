package cmd

import (
	"context"
	"evm-wire-codec/pkg/chwrapper"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

// duplicateCheck names a raw table and the columns that identify one row in it
type duplicateCheck struct {
	label string
	table string
	key   []string
}

var duplicateChecks = []duplicateCheck{
	{label: "Blocks", table: "raw_blocks", key: []string{"chain_id", "block_number"}},
	{label: "Transactions", table: "raw_txs", key: []string{"chain_id", "hash"}},
	{label: "Logs", table: "raw_logs", key: []string{"chain_id", "transaction_hash", "log_index"}},
}

// query counts keys and keys seen more than once. Rows in unmerged parts count
// separately since the table is read without FINAL.
func (d duplicateCheck) query() string {
	key := strings.Join(d.key, ", ")
	return fmt.Sprintf(`
		SELECT count() AS total, countIf(cnt > 1) AS duplicates
		FROM (
			SELECT %s, count() AS cnt
			FROM %s
			WHERE chain_id = ?
			GROUP BY %s
		)`, key, d.table, key)
}

func RunDuplicates(chainID uint32) {
	ctx := context.Background()
	conn, err := chwrapper.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if allClean := checkDuplicates(ctx, conn, chainID); allClean {
		fmt.Printf("\n%s All tables are clean - no duplicates found\n", color.GreenString("✓"))
	} else {
		fmt.Printf("\n%s Duplicates detected - data integrity issue!\n", color.RedString("✗"))
	}
	fmt.Println()
}

func checkDuplicates(ctx context.Context, conn driver.Conn, chainID uint32) bool {
	allClean := true
	for _, check := range duplicateChecks {
		fmt.Printf("\n%s (Chain %d):\n", check.label, chainID)
		fmt.Println(strings.Repeat("-", 32))

		var total, duplicates uint64
		if err := conn.QueryRow(ctx, check.query(), chainID).Scan(&total, &duplicates); err != nil {
			log.Errorf("Error querying %s: %v", check.table, err)
			allClean = false
			continue
		}

		fmt.Printf("Total:            %d\n", total)
		fmt.Printf("Duplicates:       %d\n", duplicates)
		if duplicates == 0 {
			fmt.Printf("%s No duplicates\n", color.GreenString("✓"))
		} else {
			allClean = false
			fmt.Printf("%s Found duplicates!\n", color.RedString("✗"))
		}
	}
	return allClean
}
