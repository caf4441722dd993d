// Package ledger talks to an XRP Ledger node over its JSON-RPC API and
// verifies payment claims against on-ledger channel state. The Client
// interface is the injection seam: production uses the HTTP or websocket
// transport, tests inject a deterministic fake.
package ledger

import (
	"errors"
	"fmt"
)

// RPC method names consumed by the engine.
const (
	MethodAccountChannels  = "account_channels"
	MethodChannelVerify    = "channel_verify"
	MethodChannelAuthorize = "channel_authorize"
	MethodWalletPropose    = "wallet_propose"
	MethodSubmit           = "submit"
	MethodLedger           = "ledger"
	MethodFee              = "fee"
)

// Transport errors.
var (
	// ErrTimeout is returned when a request misses its caller-supplied
	// deadline.
	ErrTimeout = errors.New("ledger request timed out")
)

// RPCError is a ledger-side error carried inside an otherwise well-formed
// response envelope.
type RPCError struct {
	Method  string
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger rpc %s failed: %s %s", e.Method, e.Code, e.Message)
}

// ChannelView is one entry of an account_channels response. CancelAfter is
// only present for expirable channels.
type ChannelView struct {
	Account            string  `json:"account"`
	DestinationAccount string  `json:"destination_account"`
	ChannelID          string  `json:"channel_id"`
	Amount             string  `json:"amount"`
	Balance            string  `json:"balance,omitempty"`
	SettleDelay        uint32  `json:"settle_delay"`
	PublicKey          string  `json:"public_key,omitempty"`
	CancelAfter        *uint32 `json:"cancel_after,omitempty"`
	Expiration         *uint32 `json:"expiration,omitempty"`
}

// Expirable reports whether the channel carries a cancel_after time.
// Expirable channels are rejected unconditionally: the escrow could vanish
// before accumulated claims are redeemed.
func (c ChannelView) Expirable() bool {
	return c.CancelAfter != nil
}

// AccountChannelsRequest queries the open channels between two accounts.
type AccountChannelsRequest struct {
	Account            string `json:"account"`
	DestinationAccount string `json:"destination_account,omitempty"`
}

// AccountChannelsResult is the result body of account_channels. A response
// without a channels key decodes to a nil slice and is treated as "no
// matching channel".
type AccountChannelsResult struct {
	Account  string        `json:"account"`
	Channels []ChannelView `json:"channels"`
}

// ChannelVerifyRequest checks a claim signature against a channel key.
type ChannelVerifyRequest struct {
	Amount    string `json:"amount"`
	ChannelID string `json:"channel_id"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// ChannelVerifyResult is the result body of channel_verify.
type ChannelVerifyResult struct {
	SignatureVerified bool `json:"signature_verified"`
}

// ChannelAuthorizeRequest signs a claim for a channel. Used by the
// client-side claim generator; the engine itself never holds secrets.
type ChannelAuthorizeRequest struct {
	Amount    string `json:"amount"`
	ChannelID string `json:"channel_id"`
	Secret    string `json:"secret"`
}

// ChannelAuthorizeResult is the result body of channel_authorize.
type ChannelAuthorizeResult struct {
	Signature string `json:"signature"`
}

// WalletProposeResult is the result body of wallet_propose.
type WalletProposeResult struct {
	AccountID    string `json:"account_id"`
	MasterSeed   string `json:"master_seed"`
	PublicKey    string `json:"public_key"`
	PublicKeyHex string `json:"public_key_hex"`
}

// SubmitRequest submits a transaction in sign-and-submit mode.
type SubmitRequest struct {
	TxJSON map[string]any `json:"tx_json"`
	Secret string         `json:"secret"`
}

// SubmitResult is the result body of submit.
type SubmitResult struct {
	EngineResult        string         `json:"engine_result"`
	EngineResultMessage string         `json:"engine_result_message"`
	TxJSON              map[string]any `json:"tx_json"`
}

// LedgerRequest queries a ledger header.
type LedgerRequest struct {
	LedgerIndex string `json:"ledger_index"`
}

// LedgerResult carries the fields of a ledger response the generator needs.
type LedgerResult struct {
	LedgerIndex uint32 `json:"ledger_index"`
}

// FeeResult carries the open-ledger fee in drops.
type FeeResult struct {
	Drops struct {
		OpenLedgerFee string `json:"open_ledger_fee"`
		BaseFee       string `json:"base_fee"`
	} `json:"drops"`
}
