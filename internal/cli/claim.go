package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhali-org/dhalid/internal/config"
	"github.com/dhali-org/dhalid/internal/paychan"
)

var createClaimFlags struct {
	sourceAddress string
	sourceSecret  string
	publicKey     string
	destination   string
	escrowDrops   string
	authAmount    string
	channelID     string
}

var createClaimCmd = &cobra.Command{
	Use:   "create-payment-claim",
	Short: "Open a payment channel and sign a claim against it",
	Long: `Fund a payment channel to the destination account and authorize the
first claim against it. With --channel-id the channel-open step is skipped
and the claim is signed against the existing channel. The claim is printed
as canonical JSON, ready for the Payment-Claim header.`,
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

		destination := createClaimFlags.destination
		if destination == "" {
			destination = cfg.DestinationAccount
		}

		gen := paychan.New(client, cfg.SettleDelay, logger)
		params := paychan.ChannelParams{
			SourceAddress:   createClaimFlags.sourceAddress,
			SourceSecret:    createClaimFlags.sourceSecret,
			SourcePublicKey: createClaimFlags.publicKey,
			Destination:     destination,
			EscrowDrops:     createClaimFlags.escrowDrops,
		}

		channelID := createClaimFlags.channelID
		if channelID == "" {
			channelID, err = gen.OpenChannel(cmd.Context(), params)
			if err != nil {
				return err
			}
		}

		c, err := gen.AuthorizeClaim(cmd.Context(), params, channelID, createClaimFlags.authAmount)
		if err != nil {
			return err
		}

		fmt.Println(c.Canonical())
		return nil
	},
}

func init() {
	flags := createClaimCmd.Flags()
	flags.StringVarP(&createClaimFlags.sourceAddress, "source-address", "s", "", "funding account's classic address")
	flags.StringVar(&createClaimFlags.sourceSecret, "source-secret", "", "funding account's secret seed")
	flags.StringVar(&createClaimFlags.publicKey, "public-key", "", "funding account's public key (hex), used to sanity-check signatures")
	flags.StringVarP(&createClaimFlags.destination, "destination", "d", "", "destination account (defaults to the configured destination_account)")
	flags.StringVarP(&createClaimFlags.escrowDrops, "total-drops", "t", "", "total drops to escrow in the channel")
	flags.StringVarP(&createClaimFlags.authAmount, "auth-amount", "a", "", "drops the claim authorizes (must not exceed --total-drops)")
	flags.StringVar(&createClaimFlags.channelID, "channel-id", "", "sign against an existing channel instead of opening one")

	_ = createClaimCmd.MarkFlagRequired("source-address")
	_ = createClaimCmd.MarkFlagRequired("source-secret")
	_ = createClaimCmd.MarkFlagRequired("auth-amount")

	rootCmd.AddCommand(createClaimCmd)
}
