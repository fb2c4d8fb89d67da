package api

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

// HexBytes is a byte slice carried as 0x-prefixed hex in JSON.
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *HexBytes) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*b = raw
	return nil
}

// MintRequest is the body of POST /tokens.
type MintRequest struct {
	Device identity.Address `json:"device"`
	Owner  identity.Address `json:"owner"`
}

// TransferRequest is the body of POST /tokens/{id}/transfer.
type TransferRequest struct {
	From identity.Address `json:"from"`
	To   identity.Address `json:"to"`
}

// ApproveRequest is the body of POST /tokens/{id}/approve.
type ApproveRequest struct {
	To identity.Address `json:"to"`
}

// OperatorRequest is the body of POST /operators.
type OperatorRequest struct {
	Operator identity.Address `json:"operator"`
	Approved bool             `json:"approved"`
}

// SetUserRequest is the body of POST /tokens/{id}/user.
type SetUserRequest struct {
	User identity.Address `json:"user"`
}

// TimeoutRequest is the body of POST /tokens/{id}/timeout.
type TimeoutRequest struct {
	// Timeout in seconds.
	Timeout uint64 `json:"timeout"`
}

// StartEngagementRequest is the body of the engagement start routes.
type StartEngagementRequest struct {
	PublicKey    HexBytes      `json:"public_key"`
	ExpectedHash identity.Hash `json:"expected_hash"`
}

// DeviceEngagementRequest is the body of the device engagement routes.
type DeviceEngagementRequest struct {
	Hash identity.Hash `json:"hash"`
}

// DelegateRequest is the body of POST /device/delegate.
type DelegateRequest struct {
	RequestType string   `json:"request_type"`
	Timestamp   uint64   `json:"timestamp"`
	Nonce       uint64   `json:"nonce"`
	Signature   HexBytes `json:"signature"`
}

// TokenIDResponse names a credential.
type TokenIDResponse struct {
	ID  identity.TokenID `json:"id"`
	Hex string           `json:"id_hex"`
}

func tokenIDResponse(id identity.TokenID) TokenIDResponse {
	return TokenIDResponse{ID: id, Hex: id.Hex()}
}

// TokenResponse is the full view of a credential.
type TokenResponse struct {
	TokenIDResponse
	Record   storage.Record   `json:"record"`
	Approved identity.Address `json:"approved"`
}

// ExpiryResponse reports the session expiry of a credential.
type ExpiryResponse struct {
	ID      identity.TokenID `json:"id"`
	Expired bool             `json:"expired"`
}

// BalanceResponse reports a holder balance.
type BalanceResponse struct {
	Address identity.Address `json:"address"`
	Balance uint64           `json:"balance"`
}

// OperatorResponse reports an operator approval.
type OperatorResponse struct {
	Owner    identity.Address `json:"owner"`
	Operator identity.Address `json:"operator"`
	Approved bool             `json:"approved"`
}

// InterfaceResponse reports capability support.
type InterfaceResponse struct {
	ID        string `json:"id"`
	Supported bool   `json:"supported"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string           `json:"status"`
	Version     string           `json:"version"`
	Registry    identity.Address `json:"registry"`
	Ready       bool             `json:"ready"`
	TotalSupply uint64           `json:"total_supply"`
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a rendered service error.
type ErrorDetail struct {
	Message   string `json:"message"`
	TextCode  string `json:"text_code"`
	Category  string `json:"category"`
	Code      int    `json:"code"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
