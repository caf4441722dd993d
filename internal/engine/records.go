package engine

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dhali-org/dhalid/internal/store"
)

// Persisted layout. The private record and its estimate/exact subcollections
// live under payment_channels; the public mirror is a separate top-level
// collection so external readers need no access to the private one.
const (
	CollectionPrivate = "payment_channels"
	CollectionPublic  = "public_claim_info"

	SubcollectionEstimate = "estimate"
	SubcollectionExact    = "exact"
)

// Document field names.
const (
	fieldAuthorizedToClaim     = "authorized_to_claim"
	fieldToClaim               = "to_claim"
	fieldCurrency              = "currency"
	fieldPaymentClaim          = "payment_claim"
	fieldTimestamp             = "timestamp"
	fieldClaimsStaged          = "number_of_claims_staged"
	fieldMetadataUpdatesStaged = "number_of_metadata_updates_staged"
	currencyFieldCode          = "code"
	currencyFieldScale         = "scale"
)

// ChannelUUID derives the document id for a channel: a version-5 UUID over
// the URL namespace of the on-ledger channel id. Deterministic, so lookups
// need no index.
func ChannelUUID(channelID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(channelID)).String()
}

// Currency is the unit of the to_claim fields. The engine only accounts in
// XRP drops.
type Currency struct {
	Code  string
	Scale float64
}

// XRPDrops is the only currency the engine accepts.
func XRPDrops() Currency {
	return Currency{Code: "XRP", Scale: 0.000001}
}

// IsXRPDrops reports whether the currency is exactly {"XRP", 0.000001}.
func (c Currency) IsXRPDrops() bool {
	return c == XRPDrops()
}

func (c Currency) encode() map[string]any {
	return map[string]any{
		currencyFieldCode:  c.Code,
		currencyFieldScale: c.Scale,
	}
}

func decodeCurrency(v any) (Currency, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Currency{}, false
	}
	code, ok := m[currencyFieldCode].(string)
	if !ok {
		return Currency{}, false
	}
	scale, ok := toFloat(m[currencyFieldScale])
	if !ok {
		return Currency{}, false
	}
	return Currency{Code: code, Scale: scale}, true
}

// ChannelRecord is the decoded form of a private channel document or one of
// its estimate/exact entries. Absent fields decode to zero values.
type ChannelRecord struct {
	AuthorizedToClaim             string
	ToClaim                       float64
	Currency                      Currency
	PaymentClaim                  string
	Timestamp                     time.Time
	NumberOfClaimsStaged          int64
	NumberOfMetadataUpdatesStaged int64
}

// AuthorizedDrops parses the authorized amount, truncated to integer drops.
// Unparsable amounts read as zero, matching the seed value of a record that
// has never carried a claim.
func (r ChannelRecord) AuthorizedDrops() int64 {
	n, err := strconv.ParseInt(r.AuthorizedToClaim, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func decodeChannelRecord(data map[string]any) ChannelRecord {
	var r ChannelRecord
	if s, ok := data[fieldAuthorizedToClaim].(string); ok {
		r.AuthorizedToClaim = s
	}
	if f, ok := toFloat(data[fieldToClaim]); ok {
		r.ToClaim = f
	}
	if c, ok := decodeCurrency(data[fieldCurrency]); ok {
		r.Currency = c
	}
	if s, ok := data[fieldPaymentClaim].(string); ok {
		r.PaymentClaim = s
	}
	if t, ok := store.DecodeTime(data[fieldTimestamp]); ok {
		r.Timestamp = t
	}
	if n, ok := toInt(data[fieldClaimsStaged]); ok {
		r.NumberOfClaimsStaged = n
	}
	if n, ok := toInt(data[fieldMetadataUpdatesStaged]); ok {
		r.NumberOfMetadataUpdatesStaged = n
	}
	return r
}

// toFloat and toInt absorb the numeric representations the backends produce:
// Firestore decodes integers as int64 and floats as float64, the embedded
// backends round-trip everything through JSON as float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
