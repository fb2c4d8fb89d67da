package delegation

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// SignatureLength is the length of an R || S || V signature.
const SignatureLength = 65

// RequestUserEngagement is the request type devices use for user engagement.
const RequestUserEngagement = "userEngagement"

// Request is the message a user signs to authorise engagement.
type Request struct {
	RequestType string `json:"request_type"`
	Timestamp   uint64 `json:"timestamp"`
	Nonce       uint64 `json:"nonce"`
}

// Digest returns the hash that is signed.
func (r Request) Digest() identity.Hash {
	var ts, nonce [32]byte
	putUint256(ts[:], r.Timestamp)
	putUint256(nonce[:], r.Nonce)
	return identity.Keccak256([]byte(r.RequestType), ts[:], nonce[:])
}

func putUint256(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[31-i] = byte(v >> (8 * i))
	}
}

// GenerateKey creates a new secp256k1 signing key.
func GenerateKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// ParsePrivateKey parses a 32-byte hex private key.
func ParsePrivateKey(s string) (*secp256k1.PrivateKey, error) {
	raw, err := identity.ParseHash(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if raw.IsZero() {
		return nil, fmt.Errorf("invalid private key: zero")
	}
	return secp256k1.PrivKeyFromBytes(raw.Bytes()), nil
}

// AddressFromPublicKey derives the principal address of a public key:
// the last 20 bytes of keccak256 over the uncompressed X || Y coordinates.
func AddressFromPublicKey(pub *secp256k1.PublicKey) identity.Address {
	h := identity.Keccak256(pub.SerializeUncompressed()[1:])
	return identity.BytesToAddress(h[12:])
}

// Sign signs req and returns an R || S || V signature with V in {27, 28}.
func Sign(priv *secp256k1.PrivateKey, req Request) []byte {
	digest := req.Digest()
	compact := secpecdsa.SignCompact(priv, digest[:], false)

	// compact is V || R || S.
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig
}

// RecoverSigner returns the address that produced sig over req.
func RecoverSigner(req Request, sig []byte) (identity.Address, error) {
	if len(sig) != SignatureLength {
		return identity.ZeroAddress, errMalformed.WithReason(fmt.Sprintf("signature must be %d bytes, got %d", SignatureLength, len(sig)))
	}
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return identity.ZeroAddress, errMalformed.WithReason(fmt.Sprintf("invalid recovery id %d", sig[64]))
	}

	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:64])

	digest := req.Digest()
	pub, _, err := secpecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return identity.ZeroAddress, errMalformed.WithReason("signature recovery failed: " + err.Error())
	}
	return AddressFromPublicKey(pub), nil
}
