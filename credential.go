package l402

import (
	"encoding/base64"
	"fmt"
	"time"

	macaroon "gopkg.in/macaroon.v2"
)

// credentialLocation is the location hint embedded in minted macaroons.
const credentialLocation = "l402"

// Credential is a signed macaroon bound to a Lightning invoice. Its identifier
// is the invoice's payment hash; its first-party caveats constrain expiry and
// the accepted payment preimage. Credentials are immutable once serialized.
type Credential struct {
	m       *macaroon.Macaroon
	caveats []Caveat
}

// MintCredential creates a new credential for the given payment hash, signed
// with rootKey and restricted by an expiry caveat and a payment_hash caveat.
func MintCredential(rootKey []byte, paymentHash string, expiresAt time.Time) (*Credential, error) {
	m, err := macaroon.New(rootKey, []byte(paymentHash), credentialLocation, macaroon.LatestVersion)
	if err != nil {
		return nil, fmt.Errorf("minting macaroon: %w", err)
	}

	caveats := []Caveat{
		ExpiresCaveat{At: expiresAt},
		PaymentHashCaveat{Hash: paymentHash},
	}
	for _, cav := range caveats {
		if err := m.AddFirstPartyCaveat([]byte(cav.String())); err != nil {
			return nil, fmt.Errorf("adding caveat %q: %w", cav.String(), err)
		}
	}

	return &Credential{m: m, caveats: caveats}, nil
}

// DecodeCredential deserializes a credential from its base64 wire form and
// parses the recognized caveats. An unparseable caveat is not fatal here; it
// surfaces as a verification failure when the credential is checked.
func DecodeCredential(s string) (*Credential, error) {
	raw, err := decodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("decoding macaroon: %w", err)
	}

	m := &macaroon.Macaroon{}
	if err := m.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshaling macaroon: %w", err)
	}

	cred := &Credential{m: m}
	for _, mc := range m.Caveats() {
		cav, err := ParseCaveat(string(mc.Id))
		if err != nil {
			continue
		}
		cred.caveats = append(cred.caveats, cav)
	}
	return cred, nil
}

// Identifier returns the payment hash the credential is bound to. It doubles
// as the single-use registry key.
func (c *Credential) Identifier() string {
	return string(c.m.Id())
}

// Expires returns the parsed expiry caveat, if the credential carries one.
func (c *Credential) Expires() (time.Time, bool) {
	for _, cav := range c.caveats {
		if e, ok := cav.(ExpiresCaveat); ok {
			return e.At, true
		}
	}
	return time.Time{}, false
}

// String serializes the credential to its base64 wire form.
func (c *Credential) String() (string, error) {
	raw, err := c.m.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshaling macaroon: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Verify checks the credential's HMAC chain against rootKey and applies the
// closed caveat predicate set: every embedded caveat must parse to a known
// type and hold for the presented preimage at time now. Any unrecognized
// caveat fails verification.
func (c *Credential) Verify(rootKey []byte, preimageHex string, now time.Time) error {
	preimageHash, err := PreimageHash(preimageHex)
	if err != nil {
		return err
	}

	return c.m.Verify(rootKey, func(raw string) error {
		cav, err := ParseCaveat(raw)
		if err != nil {
			return err
		}
		return cav.satisfied(preimageHash, now)
	}, nil)
}

// decodeBase64 accepts both raw and padded, URL-safe and standard encodings.
// Clients echo back whatever serialization their tooling produced.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	} {
		if raw, err := enc.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("not valid base64: %q", s)
}
