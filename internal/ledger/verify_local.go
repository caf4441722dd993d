package ledger

import (
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// claimPrefix is the 4-byte type tag prepended to a payment-channel claim
// before signing ("CLM" followed by a zero byte).
var claimPrefix = []byte{0x43, 0x4C, 0x4D, 0x00}

const edPrefix = 0xED

// ClaimSigningMessage builds the byte string whose signature authorizes a
// channel claim: prefix, 32-byte channel id, then the amount in drops as a
// big-endian uint64.
func ClaimSigningMessage(channelID string, drops uint64) ([]byte, error) {
	channel, err := hex.DecodeString(channelID)
	if err != nil {
		return nil, fmt.Errorf("decode channel id: %w", err)
	}
	if len(channel) != 32 {
		return nil, fmt.Errorf("channel id must be 32 bytes, got %d", len(channel))
	}
	msg := make([]byte, 0, len(claimPrefix)+32+8)
	msg = append(msg, claimPrefix...)
	msg = append(msg, channel...)
	msg = binary.BigEndian.AppendUint64(msg, drops)
	return msg, nil
}

// VerifyClaimSignature checks a claim signature without a ledger round trip.
// The public key selects the scheme: an ED-prefixed key verifies the raw
// message with ed25519, anything else is secp256k1 over the sha512-half
// digest with a DER-encoded signature.
func VerifyClaimSignature(channelID, amount, publicKeyHex, signatureHex string) (bool, error) {
	drops, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse claim amount: %w", err)
	}
	msg, err := ClaimSigningMessage(channelID, drops)
	if err != nil {
		return false, err
	}
	pubKey, err := hex.DecodeString(strings.ToUpper(publicKeyHex))
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	if len(pubKey) == ed25519.PublicKeySize+1 && pubKey[0] == edPrefix {
		if len(sig) != ed25519.SignatureSize {
			return false, nil
		}
		return ed25519.Verify(ed25519.PublicKey(pubKey[1:]), msg, sig), nil
	}

	pk, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false, fmt.Errorf("parse secp256k1 public key: %w", err)
	}
	parsed, err := btcecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, nil
	}
	return parsed.Verify(sha512Half(msg), pk), nil
}

// sha512Half is the ledger's message digest: the first 256 bits of SHA-512.
func sha512Half(b []byte) []byte {
	sum := sha512.Sum512(b)
	return sum[:32]
}
