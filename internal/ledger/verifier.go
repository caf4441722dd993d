package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dhali-org/dhalid/pkg/claim"
)

// Verification failures, in the order the matching policy can produce them.
var (
	ErrNoMatchingChannel = errors.New("no matching channel found")
	ErrExpirableChannel  = errors.New("channel is expirable")
	ErrSignatureInvalid  = errors.New("claim signature is invalid")
)

// verifyCacheSize bounds the signature-verification cache. A verify outcome
// is a pure function of its four inputs, so entries never go stale.
const verifyCacheSize = 1024

type verifyKey struct {
	channelID string
	amount    string
	publicKey string
	signature string
}

// Verifier validates payment claims against on-ledger channel state. The
// required settle delay is fixed at construction; channels with any other
// delay never match.
type Verifier struct {
	client      Client
	settleDelay uint32
	cache       *lru.Cache[verifyKey, bool]
	log         *zap.Logger
}

// NewVerifier builds a verifier. A nil logger means no logging.
func NewVerifier(client Client, settleDelay uint32, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[verifyKey, bool](verifyCacheSize)
	if err != nil {
		panic(err)
	}
	return &Verifier{
		client:      client,
		settleDelay: settleDelay,
		cache:       cache,
		log:         logger,
	}
}

// ListChannels returns the open channels from account to destination. A
// ledger-side error (unknown account, malformed address) means no channels
// rather than a transport failure.
func (v *Verifier) ListChannels(ctx context.Context, account, destination string) ([]ChannelView, error) {
	var result AccountChannelsResult
	err := v.client.Request(ctx, MethodAccountChannels, AccountChannelsRequest{
		Account:            account,
		DestinationAccount: destination,
	}, &result)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			v.log.Debug("account_channels rejected",
				zap.String("account", account),
				zap.String("code", rpcErr.Code))
			return nil, nil
		}
		return nil, err
	}
	return result.Channels, nil
}

// VerifySignature asks the ledger whether signature authorizes a claim for
// amount drops on the channel, signed by publicKey. Outcomes are cached.
func (v *Verifier) VerifySignature(ctx context.Context, channelID, amount, publicKey, signature string) (bool, error) {
	key := verifyKey{channelID: channelID, amount: amount, publicKey: publicKey, signature: signature}
	if verified, ok := v.cache.Get(key); ok {
		return verified, nil
	}

	var result ChannelVerifyResult
	err := v.client.Request(ctx, MethodChannelVerify, ChannelVerifyRequest{
		Amount:    amount,
		ChannelID: channelID,
		PublicKey: publicKey,
		Signature: signature,
	}, &result)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			// A ledger-side rejection (bad hex, malformed key) is a
			// definitive negative and safe to cache.
			v.cache.Add(key, false)
			return false, nil
		}
		return false, err
	}

	v.cache.Add(key, result.SignatureVerified)
	return result.SignatureVerified, nil
}

// VerifyClaim checks a parsed claim end to end: a channel between the
// claim's accounts must exist with the required settle delay, enough escrow
// and no expiry, and the claim signature must verify against that channel's
// public key.
func (v *Verifier) VerifyClaim(ctx context.Context, c *claim.Claim) error {
	channels, err := v.ListChannels(ctx, c.Account, c.DestinationAccount)
	if err != nil {
		return err
	}

	authorized, err := strconv.ParseInt(c.AuthorizedToClaim, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: authorized amount %q is not an integer",
			ErrNoMatchingChannel, c.AuthorizedToClaim)
	}

	var matched *ChannelView
	sawExpirable := false
	for i := range channels {
		ch := channels[i]
		if ch.ChannelID != c.ChannelID ||
			ch.Account != c.Account ||
			ch.DestinationAccount != c.DestinationAccount {
			continue
		}
		if ch.Expirable() {
			sawExpirable = true
			continue
		}
		escrowed, err := strconv.ParseInt(ch.Amount, 10, 64)
		if err != nil || escrowed < authorized {
			continue
		}
		if ch.SettleDelay != v.settleDelay {
			continue
		}
		matched = &ch
		break
	}
	if matched == nil {
		if sawExpirable {
			return fmt.Errorf("%w: channel %s has a cancel_after time",
				ErrExpirableChannel, c.ChannelID)
		}
		return fmt.Errorf("%w: channel %s from %s to %s",
			ErrNoMatchingChannel, c.ChannelID, c.Account, c.DestinationAccount)
	}

	verified, err := v.VerifySignature(ctx, c.ChannelID, c.AuthorizedToClaim, matched.PublicKey, c.Signature)
	if err != nil {
		return err
	}
	if !verified {
		return fmt.Errorf("%w: channel %s", ErrSignatureInvalid, c.ChannelID)
	}
	return nil
}
