package storage

import (
	"context"
	"sync"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// MemoryStore is an in-memory implementation of the Store interface.
type MemoryStore struct {
	mu sync.RWMutex

	authority identity.Address
	records   map[identity.TokenID]Record
	byDevice  map[identity.Address]identity.TokenID
	counters  counters
}

// NewMemoryStore creates an empty store whose authority is the given bootstrap
// identity.
func NewMemoryStore(authority identity.Address) *MemoryStore {
	return &MemoryStore{
		authority: authority,
		records:   make(map[identity.TokenID]Record),
		byDevice:  make(map[identity.Address]identity.TokenID),
		counters:  newCounters(),
	}
}

// Create stores a new record.
func (s *MemoryStore) Create(_ context.Context, caller identity.Address, id identity.TokenID, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.authority {
		return ErrAccessDenied
	}
	if _, exists := s.records[id]; exists {
		return ErrDuplicateKey
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, taken := s.byDevice[rec.Device]; taken {
		return errDeviceTaken
	}

	s.insertLocked(id, rec.Clone())
	return nil
}

// Update replaces an existing record.
func (s *MemoryStore) Update(_ context.Context, caller identity.Address, id identity.TokenID, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.authority {
		return ErrAccessDenied
	}
	old, exists := s.records[id]
	if !exists {
		return ErrNotFound
	}
	if old.Device != rec.Device {
		return ErrImmutableField
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	s.counters.move(old, rec)
	s.records[id] = rec.Clone()
	return nil
}

// Remove deletes a record.
func (s *MemoryStore) Remove(_ context.Context, caller identity.Address, id identity.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.authority {
		return ErrAccessDenied
	}
	old, exists := s.records[id]
	if !exists {
		return ErrNotFound
	}

	s.counters.sub(old)
	delete(s.byDevice, old.Device)
	delete(s.records, id)
	return nil
}

// FindByID returns the record or the zero Record.
func (s *MemoryStore) FindByID(_ context.Context, id identity.TokenID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return Record{}, nil
	}
	return rec.Clone(), nil
}

// FindByDevice returns the id bound to device or the zero id.
func (s *MemoryStore) FindByDevice(_ context.Context, device identity.Address) (identity.TokenID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byDevice[device], nil
}

// BalanceOfOwner returns the owner balance.
func (s *MemoryStore) BalanceOfOwner(_ context.Context, addr identity.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters.owners[addr], nil
}

// BalanceOfUser returns the user balance.
func (s *MemoryStore) BalanceOfUser(_ context.Context, addr identity.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters.users[addr], nil
}

// TotalCount returns the number of records.
func (s *MemoryStore) TotalCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters.total, nil
}

// Authority returns the current authority.
func (s *MemoryStore) Authority(_ context.Context) (identity.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authority, nil
}

// TransferAuthority hands the write capability to newAuthority.
func (s *MemoryStore) TransferAuthority(_ context.Context, caller, newAuthority identity.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.authority {
		return ErrAccessDenied
	}
	if newAuthority.IsZero() {
		return ErrInvalidAuthority
	}
	s.authority = newAuthority
	return nil
}

// insertLocked adds rec and its indices. Caller holds s.mu.
func (s *MemoryStore) insertLocked(id identity.TokenID, rec Record) {
	s.records[id] = rec
	s.byDevice[rec.Device] = id
	s.counters.add(rec)
}

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)
