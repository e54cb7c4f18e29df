package storage

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Multicodec prefixes: 0x1300 (ed25519-priv) and 0xed (ed25519-pub), varint
// encoded.
var (
	ed25519PrivPrefix = []byte{0x80, 0x26}
	ed25519PubPrefix  = []byte{0xed, 0x01}
)

var errInvalidPrivateKey = errors.New("invalid private key")

// Signer is the agent identity derived from the configured private key.
type Signer struct {
	key ed25519.PrivateKey
	did string
}

// ParseSigner decodes a multibase base64pad ed25519 private key, as exported
// by `storacha key create`, and derives the agent's did:key identity from it.
func ParseSigner(privateKey string) (*Signer, error) {
	if len(privateKey) < 2 || privateKey[0] != 'M' {
		return nil, fmt.Errorf("%w: expected multibase base64pad encoding", errInvalidPrivateKey)
	}

	raw, err := base64.StdEncoding.DecodeString(privateKey[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errInvalidPrivateKey, err)
	}
	if len(raw) < len(ed25519PrivPrefix)+ed25519.SeedSize {
		return nil, fmt.Errorf("%w: key material too short", errInvalidPrivateKey)
	}
	if raw[0] != ed25519PrivPrefix[0] || raw[1] != ed25519PrivPrefix[1] {
		return nil, fmt.Errorf("%w: not an ed25519 private key", errInvalidPrivateKey)
	}

	seed := raw[len(ed25519PrivPrefix) : len(ed25519PrivPrefix)+ed25519.SeedSize]
	key := ed25519.NewKeyFromSeed(seed)
	pub := key.Public().(ed25519.PublicKey)

	return &Signer{key: key, did: didFromPublicKey(pub)}, nil
}

// DID returns the did:key identity of this signer.
func (s *Signer) DID() string { return s.did }

// PublicKey returns the signer's ed25519 public key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign signs msg with the agent key.
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.key, msg)
}

// didFromPublicKey renders a did:key: the multicodec-prefixed public key,
// base58btc encoded with the 'z' multibase sigil.
func didFromPublicKey(pub ed25519.PublicKey) string {
	b := make([]byte, 0, len(ed25519PubPrefix)+len(pub))
	b = append(b, ed25519PubPrefix...)
	b = append(b, pub...)
	return "did:key:z" + base58.Encode(b)
}
