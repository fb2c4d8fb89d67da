// Package pairing derives the engagement commitments a principal and a device
// exchange through the engagement protocol.
//
// Each side holds an ephemeral P-256 key. After swapping public keys they
// compute the same ECDH secret, stretch it with HKDF-SHA256 bound to the
// credential, and hash the result with keccak256. The principal submits the
// hash as the expected value when starting a session; the device submits its
// own hash to confirm it. Only the hash ever leaves either side.
package pairing

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// KeyLength is the length of the derived engagement key.
const KeyLength = 32

const hkdfInfo = "SmartKey-Engagement-P256-SHA256"

// ErrInvalidPublicKey is returned for a peer key that is not a P-256 point.
var ErrInvalidPublicKey = errors.New("pairing: invalid public key")

// Session is one side of a pairing exchange.
type Session struct {
	priv *ecdh.PrivateKey
}

// NewSession creates a session with a fresh ephemeral key.
func NewSession() (*Session, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return &Session{priv: priv}, nil
}

// PublicKey returns the uncompressed ephemeral public key.
func (s *Session) PublicKey() []byte {
	return s.priv.PublicKey().Bytes()
}

// Commitment derives the engagement hash shared with the peer holding
// peerPublic. Both sides must use the same token id.
func (s *Session) Commitment(peerPublic []byte, id identity.TokenID) (identity.Hash, error) {
	key, err := s.DeriveKey(peerPublic, id)
	if err != nil {
		return identity.Hash{}, err
	}
	return identity.Keccak256(key), nil
}

// DeriveKey returns the engagement key shared with the peer. The key is what
// a device would keep to authenticate later sessions; it is never submitted.
func (s *Session) DeriveKey(peerPublic []byte, id identity.TokenID) ([]byte, error) {
	pub, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	secret, err := s.priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	r := hkdf.New(sha256.New, secret, id[:], []byte(hkdfInfo))
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}
