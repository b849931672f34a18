package l402

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Caveat keys recognized by the verifier. The predicate set is closed: a
// credential carrying any other key fails verification.
const (
	caveatKeyExpires     = "expires"
	caveatKeyPaymentHash = "payment_hash"

	caveatSeparator = " = "
)

// Caveat is a single typed restriction embedded in a credential. Caveats are
// parsed once at decode time rather than string-matched inside the verifier.
type Caveat interface {
	// String renders the caveat in its on-the-wire "key = value" form.
	String() string

	// satisfied reports whether the caveat holds for the given verification
	// context: the hex-encoded SHA-256 of the presented preimage and the
	// current time.
	satisfied(preimageHash string, now time.Time) error
}

// ExpiresCaveat restricts a credential to a validity window ending at At.
type ExpiresCaveat struct {
	At time.Time
}

func (c ExpiresCaveat) String() string {
	return caveatKeyExpires + caveatSeparator + c.At.UTC().Format(time.RFC3339)
}

func (c ExpiresCaveat) satisfied(_ string, now time.Time) error {
	if now.After(c.At) {
		return fmt.Errorf("credential expired at %s", c.At.UTC().Format(time.RFC3339))
	}
	return nil
}

// PaymentHashCaveat binds a credential to a Lightning payment hash. It is
// satisfied only by a preimage whose SHA-256 equals Hash.
type PaymentHashCaveat struct {
	Hash string
}

func (c PaymentHashCaveat) String() string {
	return caveatKeyPaymentHash + caveatSeparator + c.Hash
}

func (c PaymentHashCaveat) satisfied(preimageHash string, _ time.Time) error {
	if preimageHash != c.Hash {
		return fmt.Errorf("preimage does not match payment hash")
	}
	return nil
}

// ParseCaveat parses a raw first-party caveat string into its typed form.
// Unknown keys and malformed values are errors; the caller decides whether
// that is fatal (verification) or tolerable (inspection).
func ParseCaveat(raw string) (Caveat, error) {
	key, value, found := strings.Cut(raw, caveatSeparator)
	if !found {
		return nil, fmt.Errorf("malformed caveat %q", raw)
	}

	switch key {
	case caveatKeyExpires:
		at, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("malformed expires caveat %q: %w", value, err)
		}
		return ExpiresCaveat{At: at}, nil

	case caveatKeyPaymentHash:
		if _, err := hex.DecodeString(value); err != nil {
			return nil, fmt.Errorf("malformed payment_hash caveat %q: %w", value, err)
		}
		return PaymentHashCaveat{Hash: value}, nil

	default:
		return nil, fmt.Errorf("unrecognized caveat key %q", key)
	}
}

// PreimageHash returns the hex-encoded SHA-256 of a hex-encoded preimage.
// This is the proof-of-payment check: a settled Lightning payment reveals the
// preimage of the invoice's payment hash.
func PreimageHash(preimageHex string) (string, error) {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return "", fmt.Errorf("preimage is not valid hex: %w", err)
	}
	sum := sha256.Sum256(preimage)
	return hex.EncodeToString(sum[:]), nil
}
