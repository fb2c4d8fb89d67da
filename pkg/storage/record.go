package storage

import (
	"fmt"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// State is the engagement state of a credential.
type State uint8

const (
	// WaitingForOwner: minted, the owner has not paired with the device yet.
	WaitingForOwner State = iota

	// EngagedWithOwner: the owner proved a shared secret with the device.
	EngagedWithOwner

	// WaitingForUser: a user was assigned and has not paired yet.
	WaitingForUser

	// EngagedWithUser: the user (or the owner acting as user) may use the device.
	EngagedWithUser
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case WaitingForOwner:
		return "WaitingForOwner"
	case EngagedWithOwner:
		return "EngagedWithOwner"
	case WaitingForUser:
		return "WaitingForUser"
	case EngagedWithUser:
		return "EngagedWithUser"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is one of the four defined states.
func (s State) Valid() bool {
	return s <= EngagedWithUser
}

// IsUserState reports whether a user is assigned in this state.
func (s State) IsUserState() bool {
	return s == WaitingForUser || s == EngagedWithUser
}

// ParseState parses a state name as returned by String.
func ParseState(name string) (State, error) {
	for s := WaitingForOwner; s <= EngagedWithUser; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Role identifies whose handshake is pending.
type Role uint8

const (
	RoleNone Role = iota
	RoleOwner
	RoleUser
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleOwner:
		return "owner"
	case RoleUser:
		return "user"
	default:
		return "unknown"
	}
}

// Engagement is the transient state of an in-flight handshake: the principal's
// ephemeral public key and the commitment the device has to confirm.
type Engagement struct {
	_ struct{} `cbor:",toarray"`

	Role         Role          `json:"role"`
	PublicKey    []byte        `json:"public_key,omitempty"`
	ExpectedHash identity.Hash `json:"expected_hash"`
}

// IsZero reports whether no handshake is pending.
func (e Engagement) IsZero() bool {
	return e.Role == RoleNone && len(e.PublicKey) == 0 && e.ExpectedHash.IsZero()
}

// PendingFor reports whether a handshake for role is pending.
func (e Engagement) PendingFor(role Role) bool {
	return role != RoleNone && e.Role == role
}

// Record is the persisted credential. Field order is part of the external
// layout and must not change.
type Record struct {
	_ struct{} `cbor:",toarray"`

	Owner           identity.Address `json:"owner"`
	Device          identity.Address `json:"device"`
	User            identity.Address `json:"user"`
	State           State            `json:"state"`
	HashOwnerDevice identity.Hash    `json:"hash_owner_device"`
	HashUserDevice  identity.Hash    `json:"hash_user_device"`
	DataEngagement  Engagement       `json:"data_engagement"`
	Timestamp       uint64           `json:"timestamp"`
	Timeout         uint64           `json:"timeout"`
}

// Exists reports whether r is a live record. Lookups of absent ids return the
// zero Record, whose device is unset.
func (r Record) Exists() bool {
	return !r.Device.IsZero()
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	if r.DataEngagement.PublicKey != nil {
		c.DataEngagement.PublicKey = append([]byte(nil), r.DataEngagement.PublicKey...)
	}
	return c
}

// Validate checks the data invariants the store is responsible for.
func (r Record) Validate() error {
	if r.Device.IsZero() {
		return ErrInvalidRecord.WithReason("[TokenStorage] Invalid: device address is unset")
	}
	if !r.State.Valid() {
		return ErrInvalidRecord.WithReason(fmt.Sprintf("[TokenStorage] Invalid: unknown state %d", r.State))
	}
	if !r.HashUserDevice.IsZero() && !r.State.IsUserState() {
		return ErrInvalidRecord.WithReason("[TokenStorage] Invalid: user hash set without a user")
	}
	return nil
}
