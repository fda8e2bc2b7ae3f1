package cmd

import (
	"context"
	"evm-wire-codec/pkg/chwrapper"
	"fmt"

	log "github.com/sirupsen/logrus"
)

func RunWipe(all bool) {
	ctx := context.Background()
	conn, err := chwrapper.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	tables := WipeTargets(all)
	for _, table := range tables {
		log.Printf("Dropping %s...", table)
	}
	if err := chwrapper.DropTables(ctx, conn, tables); err != nil {
		log.Fatalf("Failed to wipe tables: %v", err)
	}

	if all {
		fmt.Println("All tables dropped successfully")
	} else {
		fmt.Println("Raw tables and watermarks dropped successfully (chain status kept)")
	}
}

// WipeTargets lists the tables wipe drops. Raw tables always go together with the
// watermark so the next ingest starts over from the configured start block.
func WipeTargets(all bool) []string {
	if all {
		return append(append([]string{}, chwrapper.RawTables...), chwrapper.MetaTables...)
	}
	return append(append([]string{}, chwrapper.RawTables...), "sync_watermark")
}
