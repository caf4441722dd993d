// Package paychan is the client-side helper for funding a payment channel
// and signing claims against it. It is the counterpart of the engine: it
// produces the five-field claims the validator consumes. Secrets stay on
// this side; the engine never sees them.
package paychan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/pkg/claim"
	"github.com/dhali-org/dhalid/internal/ledger"
)

// ErrChannelInvalid means no open channel matches the requested parameters
// after submission, or the matching channel is expirable.
var ErrChannelInvalid = errors.New("channel invalid, do not proceed")

// ledgerSequenceBuffer is how many ledgers past the current validated one a
// PaymentChannelCreate stays submittable.
const ledgerSequenceBuffer = 10

// ChannelParams describes the channel to fund.
type ChannelParams struct {
	// SourceAddress is the funding account's classic address.
	SourceAddress string

	// SourceSecret signs the PaymentChannelCreate and later the claims.
	SourceSecret string

	// SourcePublicKey is the channel key, hex encoded.
	SourcePublicKey string

	// Destination is the gateway account the channel pays.
	Destination string

	// EscrowDrops is the total amount to lock in the channel.
	EscrowDrops string
}

// Generator opens channels and authorizes claims through a ledger client.
type Generator struct {
	client      ledger.Client
	settleDelay uint32
	log         *zap.Logger
}

func New(client ledger.Client, settleDelay uint32, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, settleDelay: settleDelay, log: logger}
}

// CreateWallet asks the ledger node for a fresh keypair.
func (g *Generator) CreateWallet(ctx context.Context) (*ledger.WalletProposeResult, error) {
	var result ledger.WalletProposeResult
	if err := g.client.Request(ctx, ledger.MethodWalletPropose, nil, &result); err != nil {
		return nil, fmt.Errorf("wallet_propose: %w", err)
	}
	return &result, nil
}

// OpenChannel submits a PaymentChannelCreate in sign-and-submit mode, then
// re-discovers the channel through account_channels and validates it. It
// returns the on-ledger channel id.
func (g *Generator) OpenChannel(ctx context.Context, p ChannelParams) (string, error) {
	var ledgerRes ledger.LedgerResult
	err := g.client.Request(ctx, ledger.MethodLedger,
		ledger.LedgerRequest{LedgerIndex: "validated"}, &ledgerRes)
	if err != nil {
		return "", fmt.Errorf("fetch validated ledger: %w", err)
	}

	var feeRes ledger.FeeResult
	if err := g.client.Request(ctx, ledger.MethodFee, nil, &feeRes); err != nil {
		return "", fmt.Errorf("fetch fee: %w", err)
	}
	fee := feeRes.Drops.OpenLedgerFee
	if fee == "" {
		fee = feeRes.Drops.BaseFee
	}

	var submitRes ledger.SubmitResult
	err = g.client.Request(ctx, ledger.MethodSubmit, ledger.SubmitRequest{
		TxJSON: map[string]any{
			"TransactionType":    "PaymentChannelCreate",
			"Account":            p.SourceAddress,
			"Amount":             p.EscrowDrops,
			"Destination":        p.Destination,
			"PublicKey":          strings.ToUpper(p.SourcePublicKey),
			"SettleDelay":        g.settleDelay,
			"LastLedgerSequence": ledgerRes.LedgerIndex + ledgerSequenceBuffer,
			"Fee":                fee,
		},
		Secret: p.SourceSecret,
	}, &submitRes)
	if err != nil {
		return "", fmt.Errorf("submit PaymentChannelCreate: %w", err)
	}
	if !strings.HasPrefix(submitRes.EngineResult, "tes") {
		return "", fmt.Errorf("PaymentChannelCreate not applied: %s %s",
			submitRes.EngineResult, submitRes.EngineResultMessage)
	}
	g.log.Info("payment channel created",
		zap.String("account", p.SourceAddress),
		zap.String("destination", p.Destination),
		zap.String("amount", p.EscrowDrops))

	return g.FindChannel(ctx, p.SourceAddress, p.Destination, p.EscrowDrops)
}

// FindChannel locates the open channel between source and destination that
// escrows exactly escrowDrops with the required settle delay and no expiry.
func (g *Generator) FindChannel(ctx context.Context, source, destination, escrowDrops string) (string, error) {
	var channels ledger.AccountChannelsResult
	err := g.client.Request(ctx, ledger.MethodAccountChannels, ledger.AccountChannelsRequest{
		Account:            source,
		DestinationAccount: destination,
	}, &channels)
	if err != nil {
		return "", fmt.Errorf("account_channels: %w", err)
	}

	for _, ch := range channels.Channels {
		if ch.Account == source &&
			ch.DestinationAccount == destination &&
			ch.Amount == escrowDrops &&
			ch.SettleDelay == g.settleDelay &&
			!ch.Expirable() {
			return ch.ChannelID, nil
		}
	}
	return "", fmt.Errorf("%w: no open channel from %s to %s for %s drops",
		ErrChannelInvalid, source, destination, escrowDrops)
}

// AuthorizeClaim signs a claim for amount drops against the channel and
// assembles the claim record. When the channel public key is known, the
// returned signature is sanity-checked locally before being handed out.
func (g *Generator) AuthorizeClaim(ctx context.Context, p ChannelParams, channelID, amount string) (*claim.Claim, error) {
	var result ledger.ChannelAuthorizeResult
	err := g.client.Request(ctx, ledger.MethodChannelAuthorize, ledger.ChannelAuthorizeRequest{
		Amount:    amount,
		ChannelID: channelID,
		Secret:    p.SourceSecret,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("channel_authorize: %w", err)
	}

	if p.SourcePublicKey != "" {
		ok, err := ledger.VerifyClaimSignature(channelID, amount, p.SourcePublicKey, result.Signature)
		if err != nil {
			return nil, fmt.Errorf("check authorized signature: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("ledger returned a signature that does not verify for channel %s", channelID)
		}
	}

	return &claim.Claim{
		Account:            p.SourceAddress,
		DestinationAccount: p.Destination,
		AuthorizedToClaim:  amount,
		Signature:          result.Signature,
		ChannelID:          channelID,
	}, nil
}

// CreatePaymentClaim funds a channel and signs the first claim against it in
// one go.
func (g *Generator) CreatePaymentClaim(ctx context.Context, p ChannelParams, authAmount string) (*claim.Claim, error) {
	channelID, err := g.OpenChannel(ctx, p)
	if err != nil {
		return nil, err
	}
	return g.AuthorizeClaim(ctx, p, channelID, authAmount)
}
