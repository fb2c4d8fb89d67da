package storage

import (
	"context"

	"github.com/smartkey-protocol/smartkey-go/pkg/fault"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// Store errors. Reason strings are stable and shown to callers verbatim.
var (
	ErrAccessDenied   = fault.New(fault.KindAuthorization, "STORE_ACCESS_DENIED", "[TokenStorage] Access Denied.")
	ErrDuplicateKey   = fault.New(fault.KindData, "STORE_DUPLICATE_KEY", "[TokenStorage] TokenId already exists.")
	ErrNotFound       = fault.New(fault.KindData, "STORE_NOT_FOUND", "[TokenStorage] Such token does not exist.")
	ErrImmutableField = fault.New(fault.KindData, "STORE_IMMUTABLE_FIELD", "[TokenStorage] Invalid: cannot change the device's address")
	ErrInvalidRecord  = fault.New(fault.KindData, "STORE_INVALID_RECORD", "[TokenStorage] Invalid record.")

	// ErrInvalidAuthority rejects handing the write capability to the zero
	// address, which would leave the store unwritable.
	ErrInvalidAuthority = fault.New(fault.KindData, "STORE_INVALID_AUTHORITY", "[TokenStorage] Invalid: authority cannot be the zero address")
)

// errDeviceTaken is returned by Create when another id already maps to the device.
var errDeviceTaken = ErrDuplicateKey.WithReason("[TokenStorage] Device already registered.")

// Store is the authority-gated credential store.
// Implementations must be safe for concurrent access.
type Store interface {
	// Create stores a new record under id.
	// Returns ErrAccessDenied, ErrDuplicateKey or ErrInvalidRecord.
	Create(ctx context.Context, caller identity.Address, id identity.TokenID, rec Record) error

	// Update replaces the record under id, adjusting balances by the delta
	// between the old and new owner/user.
	// Returns ErrAccessDenied, ErrNotFound, ErrImmutableField or ErrInvalidRecord.
	Update(ctx context.Context, caller identity.Address, id identity.TokenID, rec Record) error

	// Remove deletes the record under id and clears its indices.
	// Returns ErrAccessDenied or ErrNotFound.
	Remove(ctx context.Context, caller identity.Address, id identity.TokenID) error

	// FindByID returns the record under id, or the zero Record if absent.
	// The error is reserved for backend failures.
	FindByID(ctx context.Context, id identity.TokenID) (Record, error)

	// FindByDevice returns the id bound to device, or the zero id.
	FindByDevice(ctx context.Context, device identity.Address) (identity.TokenID, error)

	// BalanceOfOwner returns the number of live records owned by addr.
	BalanceOfOwner(ctx context.Context, addr identity.Address) (uint64, error)

	// BalanceOfUser returns the number of live records whose user is addr.
	BalanceOfUser(ctx context.Context, addr identity.Address) (uint64, error)

	// TotalCount returns the number of live records.
	TotalCount(ctx context.Context) (uint64, error)

	// Authority returns the current authority.
	Authority(ctx context.Context) (identity.Address, error)

	// TransferAuthority hands the write capability to newAuthority.
	// Only the current authority may call it.
	TransferAuthority(ctx context.Context, caller, newAuthority identity.Address) error
}

// counters holds the incrementally maintained balance indices.
// Callers hold the owning store's lock.
type counters struct {
	owners map[identity.Address]uint64
	users  map[identity.Address]uint64
	total  uint64
}

func newCounters() counters {
	return counters{
		owners: make(map[identity.Address]uint64),
		users:  make(map[identity.Address]uint64),
	}
}

func (c *counters) add(r Record) {
	if !r.Owner.IsZero() {
		c.owners[r.Owner]++
	}
	if !r.User.IsZero() {
		c.users[r.User]++
	}
	c.total++
}

func (c *counters) sub(r Record) {
	decrement(c.owners, r.Owner)
	decrement(c.users, r.User)
	if c.total > 0 {
		c.total--
	}
}

// move applies the delta between old and next. Equal holders cancel out.
func (c *counters) move(old, next Record) {
	if old.Owner != next.Owner {
		decrement(c.owners, old.Owner)
		if !next.Owner.IsZero() {
			c.owners[next.Owner]++
		}
	}
	if old.User != next.User {
		decrement(c.users, old.User)
		if !next.User.IsZero() {
			c.users[next.User]++
		}
	}
}

func decrement(m map[identity.Address]uint64, addr identity.Address) {
	if addr.IsZero() {
		return
	}
	switch n := m[addr]; n {
	case 0:
	case 1:
		delete(m, addr)
	default:
		m[addr] = n - 1
	}
}
