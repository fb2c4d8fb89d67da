package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// Event is a credential event. CBOR encoding uses integer keys for compactness.
type Event struct {
	// ID uniquely identifies the event.
	ID uuid.UUID `cbor:"1,keyasint" json:"id"`

	// Timestamp when the event was recorded.
	Timestamp time.Time `cbor:"2,keyasint" json:"timestamp"`

	// Kind classifies the event.
	Kind Kind `cbor:"3,keyasint" json:"kind"`

	// TokenID is the affected credential (zero for ApprovalForAll).
	TokenID identity.TokenID `cbor:"4,keyasint" json:"token_id"`

	// Type-specific payload (at most one is set).
	Transfer *TransferData `cbor:"5,keyasint,omitempty" json:"transfer,omitempty"`
	Approval *ApprovalData `cbor:"6,keyasint,omitempty" json:"approval,omitempty"`
	Operator *OperatorData `cbor:"7,keyasint,omitempty" json:"operator,omitempty"`
	User     *UserData     `cbor:"8,keyasint,omitempty" json:"user,omitempty"`
}

// Kind classifies an event.
type Kind uint8

const (
	// KindTransfer: ownership moved. Mint has a zero From, burn a zero To.
	KindTransfer Kind = iota
	// KindApproval: a single-token approval was set or cleared.
	KindApproval
	// KindApprovalForAll: an operator was enabled or disabled for an owner.
	KindApprovalForAll
	// KindOwnerEngaged: the credential is in EngagedWithOwner.
	KindOwnerEngaged
	// KindUserEngaged: the credential is in EngagedWithUser.
	KindUserEngaged
	// KindUserAssigned: a user was assigned and must now pair with the device.
	KindUserAssigned
)

var kindNames = map[Kind]string{
	KindTransfer:       "Transfer",
	KindApproval:       "Approval",
	KindApprovalForAll: "ApprovalForAll",
	KindOwnerEngaged:   "OwnerEngaged",
	KindUserEngaged:    "UserEngaged",
	KindUserAssigned:   "UserAssigned",
}

// String returns the event name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ParseKind parses an event name as returned by String. Matching is exact.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// TransferData is the payload of a Transfer event.
type TransferData struct {
	From identity.Address `cbor:"1,keyasint" json:"from"`
	To   identity.Address `cbor:"2,keyasint" json:"to"`
}

// ApprovalData is the payload of an Approval event.
type ApprovalData struct {
	Owner    identity.Address `cbor:"1,keyasint" json:"owner"`
	Approved identity.Address `cbor:"2,keyasint" json:"approved"`
}

// OperatorData is the payload of an ApprovalForAll event.
type OperatorData struct {
	Owner    identity.Address `cbor:"1,keyasint" json:"owner"`
	Operator identity.Address `cbor:"2,keyasint" json:"operator"`
	Approved bool             `cbor:"3,keyasint" json:"approved"`
}

// UserData is the payload of a UserAssigned event.
type UserData struct {
	User identity.Address `cbor:"1,keyasint" json:"user"`
}

// Transfer builds a Transfer event.
func Transfer(from, to identity.Address, id identity.TokenID) Event {
	return Event{Kind: KindTransfer, TokenID: id, Transfer: &TransferData{From: from, To: to}}
}

// Approval builds an Approval event.
func Approval(owner, approved identity.Address, id identity.TokenID) Event {
	return Event{Kind: KindApproval, TokenID: id, Approval: &ApprovalData{Owner: owner, Approved: approved}}
}

// ApprovalForAll builds an ApprovalForAll event.
func ApprovalForAll(owner, operator identity.Address, approved bool) Event {
	return Event{Kind: KindApprovalForAll, Operator: &OperatorData{Owner: owner, Operator: operator, Approved: approved}}
}

// OwnerEngaged builds an OwnerEngaged event.
func OwnerEngaged(id identity.TokenID) Event {
	return Event{Kind: KindOwnerEngaged, TokenID: id}
}

// UserEngaged builds a UserEngaged event.
func UserEngaged(id identity.TokenID) Event {
	return Event{Kind: KindUserEngaged, TokenID: id}
}

// UserAssigned builds a UserAssigned event.
func UserAssigned(id identity.TokenID, user identity.Address) Event {
	return Event{Kind: KindUserAssigned, TokenID: id, User: &UserData{User: user}}
}

// At returns a copy of e with a fresh id and the given timestamp.
func (e Event) At(t time.Time) Event {
	e.ID = uuid.New()
	e.Timestamp = t
	return e
}

// Addresses returns every address mentioned by the event payload.
func (e Event) Addresses() []identity.Address {
	switch {
	case e.Transfer != nil:
		return []identity.Address{e.Transfer.From, e.Transfer.To}
	case e.Approval != nil:
		return []identity.Address{e.Approval.Owner, e.Approval.Approved}
	case e.Operator != nil:
		return []identity.Address{e.Operator.Owner, e.Operator.Operator}
	case e.User != nil:
		return []identity.Address{e.User.User}
	default:
		return nil
	}
}
