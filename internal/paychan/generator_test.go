package paychan

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhali-org/dhalid/internal/ledger"
)

const (
	testSettleDelay uint32 = 15768000
	testChannelID          = "5DB01B7FFED6B67E6B0414DED11E051D2EE2B7619CE0EAA6286D67A3A4D5BDB3"
)

// scriptedClient replays canned results per method and records requests.
type scriptedClient struct {
	results  map[string]any
	errs     map[string]error
	requests map[string][]any
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		results:  make(map[string]any),
		errs:     make(map[string]error),
		requests: make(map[string][]any),
	}
}

func (c *scriptedClient) Request(_ context.Context, method string, params any, result any) error {
	c.requests[method] = append(c.requests[method], params)
	if err := c.errs[method]; err != nil {
		return err
	}
	scripted, ok := c.results[method]
	if !ok {
		return &ledger.RPCError{Method: method, Code: "unknownCmd"}
	}
	raw, err := json.Marshal(scripted)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func channelParams() ChannelParams {
	return ChannelParams{
		SourceAddress: "rAlice",
		SourceSecret:  "shhh",
		Destination:   "rDhali",
		EscrowDrops:   "1000000",
	}
}

func scriptHappyPath(c *scriptedClient) {
	c.results[ledger.MethodLedger] = ledger.LedgerResult{LedgerIndex: 7000}
	c.results[ledger.MethodFee] = map[string]any{
		"drops": map[string]any{"open_ledger_fee": "12", "base_fee": "10"},
	}
	c.results[ledger.MethodSubmit] = ledger.SubmitResult{EngineResult: "tesSUCCESS"}
	c.results[ledger.MethodAccountChannels] = ledger.AccountChannelsResult{
		Channels: []ledger.ChannelView{{
			Account:            "rAlice",
			DestinationAccount: "rDhali",
			ChannelID:          testChannelID,
			Amount:             "1000000",
			SettleDelay:        testSettleDelay,
		}},
	}
	c.results[ledger.MethodChannelAuthorize] = ledger.ChannelAuthorizeResult{Signature: "SIG"}
}

func TestOpenChannel(t *testing.T) {
	c := newScriptedClient()
	scriptHappyPath(c)
	g := New(c, testSettleDelay, nil)

	channelID, err := g.OpenChannel(context.Background(), channelParams())
	require.NoError(t, err)
	assert.Equal(t, testChannelID, channelID)

	require.Len(t, c.requests[ledger.MethodSubmit], 1)
	submit := c.requests[ledger.MethodSubmit][0].(ledger.SubmitRequest)
	assert.Equal(t, "shhh", submit.Secret)
	assert.Equal(t, "PaymentChannelCreate", submit.TxJSON["TransactionType"])
	assert.Equal(t, "1000000", submit.TxJSON["Amount"])
	assert.Equal(t, testSettleDelay, submit.TxJSON["SettleDelay"])
	assert.Equal(t, uint32(7010), submit.TxJSON["LastLedgerSequence"])
	assert.Equal(t, "12", submit.TxJSON["Fee"])
}

func TestOpenChannel_SubmitRejected(t *testing.T) {
	c := newScriptedClient()
	scriptHappyPath(c)
	c.results[ledger.MethodSubmit] = ledger.SubmitResult{
		EngineResult:        "tecUNFUNDED",
		EngineResultMessage: "insufficient balance",
	}
	g := New(c, testSettleDelay, nil)

	_, err := g.OpenChannel(context.Background(), channelParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tecUNFUNDED")
	assert.Empty(t, c.requests[ledger.MethodAccountChannels])
}

func TestFindChannel_RejectsMismatches(t *testing.T) {
	base := func() ledger.ChannelView {
		return ledger.ChannelView{
			Account:            "rAlice",
			DestinationAccount: "rDhali",
			ChannelID:          testChannelID,
			Amount:             "1000000",
			SettleDelay:        testSettleDelay,
		}
	}
	cancelAfter := uint32(740000000)

	cases := []struct {
		name   string
		mutate func(*ledger.ChannelView)
	}{
		{"wrong amount", func(ch *ledger.ChannelView) { ch.Amount = "999999" }},
		{"wrong settle delay", func(ch *ledger.ChannelView) { ch.SettleDelay++ }},
		{"expirable", func(ch *ledger.ChannelView) { ch.CancelAfter = &cancelAfter }},
		{"wrong destination", func(ch *ledger.ChannelView) { ch.DestinationAccount = "rOther" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := base()
			tc.mutate(&ch)
			c := newScriptedClient()
			c.results[ledger.MethodAccountChannels] = ledger.AccountChannelsResult{
				Channels: []ledger.ChannelView{ch},
			}
			g := New(c, testSettleDelay, nil)

			_, err := g.FindChannel(context.Background(), "rAlice", "rDhali", "1000000")
			assert.ErrorIs(t, err, ErrChannelInvalid)
		})
	}
}

func TestAuthorizeClaim(t *testing.T) {
	c := newScriptedClient()
	scriptHappyPath(c)
	g := New(c, testSettleDelay, nil)

	got, err := g.AuthorizeClaim(context.Background(), channelParams(), testChannelID, "500000")
	require.NoError(t, err)

	assert.Equal(t, "rAlice", got.Account)
	assert.Equal(t, "rDhali", got.DestinationAccount)
	assert.Equal(t, "500000", got.AuthorizedToClaim)
	assert.Equal(t, "SIG", got.Signature)
	assert.Equal(t, testChannelID, got.ChannelID)
}

func TestAuthorizeClaim_LocalSignatureCheck(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg, err := ledger.ClaimSigningMessage(testChannelID, 500000)
	require.NoError(t, err)

	c := newScriptedClient()
	c.results[ledger.MethodChannelAuthorize] = ledger.ChannelAuthorizeResult{
		Signature: hex.EncodeToString(ed25519.Sign(priv, msg)),
	}
	g := New(c, testSettleDelay, nil)

	p := channelParams()
	p.SourcePublicKey = "ED" + hex.EncodeToString(pub)

	got, err := g.AuthorizeClaim(context.Background(), p, testChannelID, "500000")
	require.NoError(t, err)
	assert.Equal(t, "500000", got.AuthorizedToClaim)

	// A signature over a different amount is caught before it leaves.
	_, err = g.AuthorizeClaim(context.Background(), p, testChannelID, "500001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not verify")
}

func TestCreateWallet(t *testing.T) {
	c := newScriptedClient()
	c.results[ledger.MethodWalletPropose] = ledger.WalletProposeResult{
		AccountID:  "rNew",
		MasterSeed: "sSeed",
		PublicKey:  "aKey",
	}
	g := New(c, testSettleDelay, nil)

	w, err := g.CreateWallet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rNew", w.AccountID)
	assert.Equal(t, "sSeed", w.MasterSeed)
}
