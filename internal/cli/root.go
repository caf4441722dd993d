// Package cli wires the engine's pieces together behind a cobra command
// tree: the consolidation service plus the client-side wallet and claim
// helpers.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	debug      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dhalid",
	Short: "dhalid - payment-claim validation and accounting engine",
	Long: `dhalid validates signed off-ledger payment claims against XRP Ledger
payment channels, keeps per-channel accounting in a transactional document
store, and periodically consolidates staged per-request claims into a single
canonical record with a public mirror.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
}
