package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhali-org/dhalid/internal/config"
	"github.com/dhali-org/dhalid/internal/engine/sweeper"
)

var consolidateOnce bool

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate staged claims into canonical channel records",
	Long: `Run the consolidation sweeper. By default it runs until interrupted,
sweeping on the configured interval; with --once it performs a single sweep
and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := buildLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		client, closeClient, err := newLedgerClient(ctx, cfg.Ledger, logger)
		if err != nil {
			return err
		}
		defer func() { _ = closeClient() }()

		eng, err := buildEngine(cfg, st, client, logger)
		if err != nil {
			return err
		}

		svc := sweeper.New(st, eng, cfg.Consolidation.Interval(), cfg.Consolidation.BatchSize, logger)
		if consolidateOnce {
			return svc.SweepOnce(ctx)
		}
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	consolidateCmd.Flags().BoolVar(&consolidateOnce, "once", false, "perform a single sweep and exit")
	rootCmd.AddCommand(consolidateCmd)
}
