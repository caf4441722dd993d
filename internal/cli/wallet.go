package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhali-org/dhalid/internal/config"
	"github.com/dhali-org/dhalid/internal/paychan"
)

var createWalletCmd = &cobra.Command{
	Use:   "create-wallet",
	Short: "Generate a new ledger keypair via wallet_propose",
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

		client, closeClient, err := newLedgerClient(cmd.Context(), cfg.Ledger, logger)
		if err != nil {
			return err
		}
		defer func() { _ = closeClient() }()

		gen := paychan.New(client, cfg.SettleDelay, logger)
		wallet, err := gen.CreateWallet(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("classic_address: %s\n", wallet.AccountID)
		fmt.Printf("secret_seed: %s\n", wallet.MasterSeed)
		fmt.Printf("public_key: %s\n", wallet.PublicKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createWalletCmd)
}
