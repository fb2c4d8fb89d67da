package delegation

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

func TestDigestLayout(t *testing.T) {
	req := Request{RequestType: "userEngagement", Timestamp: 1700000000, Nonce: 7}

	packed := []byte("userEngagement")
	ts, _ := hex.DecodeString("000000000000000000000000000000000000000000000000000000006553f100")
	nonce, _ := hex.DecodeString("0000000000000000000000000000000000000000000000000000000000000007")
	packed = append(packed, ts...)
	packed = append(packed, nonce...)

	assert.Equal(t, identity.Keccak256(packed), req.Digest())
	assert.Equal(t, req.Digest(), req.Digest())

	other := req
	other.Nonce = 8
	assert.NotEqual(t, req.Digest(), other.Digest())
}

func TestSignAndRecover(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)
	want := AddressFromPublicKey(priv.PubKey())
	req := Request{RequestType: RequestUserEngagement, Timestamp: 1700000000, Nonce: 1}

	sig := Sign(priv, req)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	got, err := RecoverSigner(req, sig)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	t.Run("ZeroBasedRecoveryID", func(t *testing.T) {
		alt := append([]byte(nil), sig...)
		alt[64] -= 27
		got, err := RecoverSigner(req, alt)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("DifferentRequest", func(t *testing.T) {
		got, err := RecoverSigner(Request{RequestType: RequestUserEngagement, Timestamp: 1700000000, Nonce: 2}, sig)
		if err == nil {
			assert.NotEqual(t, want, got)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := RecoverSigner(req, sig[:64])
		assert.ErrorIs(t, err, ErrBadSignature)

		bad := append([]byte(nil), sig...)
		bad[64] = 5
		_, err = RecoverSigner(req, bad)
		assert.ErrorIs(t, err, ErrBadSignature)

		_, err = RecoverSigner(req, make([]byte, SignatureLength))
		assert.ErrorIs(t, err, ErrBadSignature)
	})
}

func TestAddressFromKnownKey(t *testing.T) {
	// Private key 1 maps to the well-known address of the generator point.
	priv, err := ParsePrivateKey("0x0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t,
		identity.MustParseAddress("0x7e5f4552091a69125d5dfcb7b8c2659029395bdf"),
		AddressFromPublicKey(priv.PubKey()))

	_, err = ParsePrivateKey("0x00")
	assert.Error(t, err)
	_, err = ParsePrivateKey("0x0000000000000000000000000000000000000000000000000000000000000000")
	assert.Error(t, err)
}
