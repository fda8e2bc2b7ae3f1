package main

import (
	"evm-wire-codec/cmd"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "evm-wire-codec",
		Short:         "Decode, fetch, cache and ingest EVM JSON-RPC data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, args []string) error {
			levelName, _ := command.Flags().GetString("log-level")
			level, err := log.ParseLevel(levelName)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	decodeCmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a JSON-RPC object and print its canonical encoding",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			kind, _ := command.Flags().GetString("kind")
			useMap, _ := command.Flags().GetBool("map")
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return cmd.RunDecode(kind, useMap, path, command.OutOrStdout())
		},
	}
	decodeCmd.Flags().String("kind", "block", "Entity kind: "+strings.Join(cmd.DecodeKinds, "|"))
	decodeCmd.Flags().Bool("map", false, "Decode through a generic map instead of the raw JSON")

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one block with its receipts and print a summary",
		RunE: func(command *cobra.Command, args []string) error {
			var opts cmd.FetchOptions
			opts.RpcURL, _ = command.Flags().GetString("rpc")
			opts.Block, _ = command.Flags().GetInt64("block")
			opts.CacheDir, _ = command.Flags().GetString("cache-dir")
			opts.ChainID, _ = command.Flags().GetUint32("chain")
			return cmd.RunFetch(opts, command.OutOrStdout())
		},
	}
	fetchCmd.Flags().String("rpc", "http://localhost:8545", "JSON-RPC endpoint")
	fetchCmd.Flags().Int64("block", -1, "Block number, negative for the chain head")
	fetchCmd.Flags().String("cache-dir", "", "Read the block through this cache directory (e.g. "+cmd.CacheDir+")")
	fetchCmd.Flags().Uint32("chain", 1, "Chain ID of the cache to use")

	wipeCmd := &cobra.Command{
		Use:   "wipe",
		Short: "Drop raw tables and watermarks",
		Run: func(command *cobra.Command, args []string) {
			all, _ := command.Flags().GetBool("all")
			cmd.RunWipe(all)
		},
	}
	wipeCmd.Flags().Bool("all", false, "Also drop chain_status")

	duplicatesCmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Count duplicate rows in the raw tables",
		Run: func(command *cobra.Command, args []string) {
			chainID, _ := command.Flags().GetUint32("chain")
			cmd.RunDuplicates(chainID)
		},
	}
	duplicatesCmd.Flags().Uint32("chain", 1, "Chain ID to check")

	root.AddCommand(
		decodeCmd,
		fetchCmd,
		&cobra.Command{
			Use:   "cache",
			Short: "Fill the block cache of every configured chain (no ClickHouse)",
			Run:   func(command *cobra.Command, args []string) { cmd.RunCache() },
		},
		&cobra.Command{
			Use:   "ingest",
			Short: "Start the continuous ingestion process",
			Run:   func(command *cobra.Command, args []string) { cmd.RunIngest() },
		},
		&cobra.Command{
			Use:   "size",
			Short: "Show ClickHouse table sizes and disk usage",
			Run:   func(command *cobra.Command, args []string) { cmd.RunSize() },
		},
		wipeCmd,
		duplicatesCmd,
	)

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
