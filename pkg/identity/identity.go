package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Lengths of the fixed-size identifiers.
const (
	AddressLength = 20
	HashLength    = 32
	TokenIDLength = 32
)

// Parse errors.
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidHash    = errors.New("invalid hash")
	ErrInvalidTokenID = errors.New("invalid token id")
)

// Address identifies a principal or a device.
type Address [AddressLength]byte

// ZeroAddress is the "unset" sentinel.
var ZeroAddress Address

// BytesToAddress returns the address formed by the last 20 bytes of b.
// Shorter inputs are left-padded with zeros.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// ParseAddress parses a 0x-prefixed (or bare) 40 character hex address.
func ParseAddress(s string) (Address, error) {
	raw, err := decodeHex(s, AddressLength)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return BytesToAddress(raw), nil
}

// MustParseAddress is like ParseAddress but panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the unset sentinel.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// Hex returns the lowercase 0x-prefixed hex form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// String returns the hex form.
func (a Address) String() string {
	return a.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash is a 32-byte digest or commitment.
type Hash [HashLength]byte

// BytesToHash returns the hash formed by the last 32 bytes of b.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// ParseHash parses a 0x-prefixed (or bare) 64 character hex hash.
func ParseHash(s string) (Hash, error) {
	raw, err := decodeHex(s, HashLength)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	return BytesToHash(raw), nil
}

// IsZero reports whether h is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the hash bytes.
func (h Hash) Bytes() []byte {
	return append([]byte(nil), h[:]...)
}

// Hex returns the lowercase 0x-prefixed hex form.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// String returns the hex form.
func (h Hash) String() string {
	return h.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	var h Hash
	d.Sum(h[:0])
	return h
}

// TokenID is a big-endian unsigned 256-bit credential identifier.
type TokenID [TokenIDLength]byte

// ZeroTokenID is returned by lookups that find nothing.
var ZeroTokenID TokenID

// TokenIDFromAddress derives the token id of a device.
func TokenIDFromAddress(a Address) TokenID {
	var id TokenID
	copy(id[TokenIDLength-AddressLength:], a[:])
	return id
}

// TokenIDFromBig converts a non-negative integer below 2^256.
func TokenIDFromBig(n *big.Int) (TokenID, error) {
	if n == nil || n.Sign() < 0 || n.BitLen() > TokenIDLength*8 {
		return TokenID{}, ErrInvalidTokenID
	}
	var id TokenID
	n.FillBytes(id[:])
	return id, nil
}

// ParseTokenID accepts a decimal string or a 0x-prefixed hex string.
func ParseTokenID(s string) (TokenID, error) {
	s = strings.TrimSpace(s)
	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = n.SetString(s[2:], 16)
	} else {
		_, ok = n.SetString(s, 10)
	}
	if !ok {
		return TokenID{}, fmt.Errorf("%w: %q", ErrInvalidTokenID, s)
	}
	id, err := TokenIDFromBig(n)
	if err != nil {
		return TokenID{}, fmt.Errorf("%w: %q", ErrInvalidTokenID, s)
	}
	return id, nil
}

// IsZero reports whether id is zero.
func (id TokenID) IsZero() bool {
	return id == ZeroTokenID
}

// Big returns the numeric value of id.
func (id TokenID) Big() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Hex returns the fixed-width 0x-prefixed hex form.
func (id TokenID) Hex() string {
	return "0x" + hex.EncodeToString(id[:])
}

// String returns the decimal form.
func (id TokenID) String() string {
	return id.Big().String()
}

// MarshalText implements encoding.TextMarshaler using the decimal form.
func (id TokenID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TokenID) UnmarshalText(text []byte) error {
	parsed, err := ParseTokenID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func decodeHex(s string, size int) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != size*2 {
		return nil, fmt.Errorf("expected %d hex characters, got %d", size*2, len(s))
	}
	return hex.DecodeString(s)
}
