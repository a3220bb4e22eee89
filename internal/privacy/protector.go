// Package privacy maps source addresses to the identity printed in reports.
package privacy

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"
	"net/netip"

	"golang.org/x/crypto/blake2b"

	"firestige.xyz/pulso/internal/core"
)

// DigestSize is the byte length of the keyed digest; tokens are twice as long in hex.
const DigestSize = 8

// Protector renders an address for output.
type Protector interface {
	Protect(addr netip.Addr) string
}

// Tokenizer replaces addresses with HMAC-BLAKE2b-64 tokens keyed by a secret.
type Tokenizer struct {
	key []byte
}

// NewTokenizer returns a Tokenizer keyed with secret. An empty secret is rejected.
func NewTokenizer(secret string) (*Tokenizer, error) {
	if secret == "" {
		return nil, core.ErrSecretMissing
	}
	return &Tokenizer{key: []byte(secret)}, nil
}

// Protect hashes the raw address bytes (4 or 16) and returns a 16 character
// lowercase hex token. The address family only affects the input length.
func (t *Tokenizer) Protect(addr netip.Addr) string {
	mac := hmac.New(newBlake2b64, t.key)
	mac.Write(addr.AsSlice())
	return hex.EncodeToString(mac.Sum(nil))
}

func newBlake2b64() hash.Hash {
	// Only fails for sizes above 64 or keys above 64 bytes.
	h, err := blake2b.New(DigestSize, nil)
	if err != nil {
		panic(err)
	}
	return h
}

// Plain prints addresses in their standard textual form.
type Plain struct{}

// Protect returns addr.String().
func (Plain) Protect(addr netip.Addr) string {
	return addr.String()
}

// New selects the strategy: a Tokenizer when anonymize is set, Plain otherwise.
func New(anonymize bool, secret string) (Protector, error) {
	if !anonymize {
		return Plain{}, nil
	}
	return NewTokenizer(secret)
}
