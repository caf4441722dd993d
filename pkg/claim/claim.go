// Package claim models the signed off-ledger payment claims that clients
// attach to every request. Parsing and structural validation live here;
// cryptographic verification is the ledger verifier's job.
package claim

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Claim errors
var (
	ErrNotJSON      = errors.New("claim is not valid JSON")
	ErrMissingField = errors.New("claim is missing a required field")
)

// RequiredFields lists the fields every claim must carry.
// Reference: https://xrpl.org/account_channels.html
var RequiredFields = []string{
	"account",
	"destination_account",
	"authorized_to_claim",
	"signature",
	"channel_id",
}

// Claim is a signed authorisation to withdraw up to AuthorizedToClaim drops
// from a specific payment channel. AuthorizedToClaim is a decimal string of
// integer drops and is monotone non-decreasing for a given channel.
type Claim struct {
	Account            string `json:"account"`
	DestinationAccount string `json:"destination_account"`
	AuthorizedToClaim  string `json:"authorized_to_claim"`
	Signature          string `json:"signature"`
	ChannelID          string `json:"channel_id"`
}

// Parse decodes a claim payload and checks that all required fields are
// present. No cryptographic work happens here.
func Parse(raw []byte) (*Claim, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	for _, key := range RequiredFields {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: %s (required fields: %s)",
				ErrMissingField, key, strings.Join(RequiredFields, ", "))
		}
	}

	var c Claim
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	return &c, nil
}

// Canonical returns the canonical serialisation of the claim: keys sorted,
// no insignificant whitespace, decimal-string numerics preserved verbatim.
// Two claims are equal iff their canonical forms are byte-equal; the
// validator's signature cache depends on this being stable across
// encode/decode round trips.
func (c *Claim) Canonical() string {
	// encoding/json emits map keys in sorted order with no whitespace,
	// which is exactly the canonical-form contract.
	out, err := json.Marshal(map[string]string{
		"account":             c.Account,
		"destination_account": c.DestinationAccount,
		"authorized_to_claim": c.AuthorizedToClaim,
		"signature":           c.Signature,
		"channel_id":          c.ChannelID,
	})
	if err != nil {
		// Marshalling a map of strings cannot fail.
		panic(err)
	}
	return string(out)
}

// Equal reports whether two claims have identical canonical forms.
func (c *Claim) Equal(other *Claim) bool {
	if other == nil {
		return false
	}
	return c.Canonical() == other.Canonical()
}

// EqualSerialized reports whether a previously stored claim serialisation
// matches this claim, regardless of key order or whitespace in the stored
// form.
func (c *Claim) EqualSerialized(stored string) bool {
	parsed, err := Parse([]byte(stored))
	if err != nil {
		return false
	}
	return c.Equal(parsed)
}

// StripSpaces removes space characters from a serialised claim. The
// estimate/exact reconciler compares whitespace-stripped forms because the
// staged copy and the incoming copy may have been serialised by different
// writers.
func StripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}
