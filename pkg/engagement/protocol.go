package engagement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

// Config configures a Protocol.
type Config struct {
	// Authority is the identity used for store writes. It must hold the
	// store authority for mutations to succeed.
	Authority identity.Address

	// Events receives OwnerEngaged, UserEngaged and UserAssigned.
	Events journal.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger is the operational logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Protocol runs the pairing state machine against a credential store.
//
// Each operation validates first and then performs exactly one store write,
// followed by at most one event. A failed operation leaves the record and the
// journal untouched.
type Protocol struct {
	mu sync.Mutex

	store     storage.Store
	authority identity.Address
	events    journal.Logger
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Protocol over store.
func New(store storage.Store, cfg Config) *Protocol {
	p := &Protocol{
		store:     store,
		authority: cfg.Authority,
		events:    cfg.Events,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if p.events == nil {
		p.events = journal.NoopLogger{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// StartOwnerEngagement records the owner's half of a pairing session.
// The state is unchanged; the owner may re-issue a session at any time.
func (p *Protocol) StartOwnerEngagement(ctx context.Context, caller identity.Address, id identity.TokenID, publicKey []byte, expectedHash identity.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Exists() || caller.IsZero() || caller != rec.Owner {
		return ErrAccessDenied
	}
	if err := checkCommitment(publicKey, expectedHash); err != nil {
		return err
	}

	rec.DataEngagement = pending(storage.RoleOwner, publicKey, expectedHash)
	rec.Timestamp = p.unixNow()
	if err := p.store.Update(ctx, p.authority, id, rec); err != nil {
		return err
	}

	p.logger.Debug("owner engagement started", "token_id", id.String(), "owner", caller.Hex())
	return nil
}

// OwnerEngagement confirms the owner session from the device side. It returns
// the id of the credential bound to the calling device.
func (p *Protocol) OwnerEngagement(ctx context.Context, caller identity.Address, hash identity.Hash) (identity.TokenID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, rec, err := DeviceRecord(ctx, p.store, caller)
	if err != nil {
		return identity.ZeroTokenID, err
	}
	if !rec.DataEngagement.PendingFor(storage.RoleOwner) {
		return identity.ZeroTokenID, ErrNotStarted
	}
	if hash != rec.DataEngagement.ExpectedHash {
		p.logger.Warn("owner engagement hash mismatch", "token_id", id.String())
		return identity.ZeroTokenID, ErrHandshakeFailed
	}

	rec.HashOwnerDevice = hash
	rec.DataEngagement = storage.Engagement{}
	if rec.State.IsUserState() {
		rec.User = identity.ZeroAddress
		rec.HashUserDevice = identity.Hash{}
	}
	rec.State = storage.EngagedWithOwner
	if err := p.store.Update(ctx, p.authority, id, rec); err != nil {
		return identity.ZeroTokenID, err
	}

	p.emit(journal.OwnerEngaged(id))
	return id, nil
}

// SetUser reassigns the user of a credential. Only the owner may call it.
//
//	state                        newUser      result
//	WaitingForOwner              any          ErrInvalidState
//	EngagedWithOwner             zero         ErrInvalidState
//	EngagedWithOwner             owner        EngagedWithUser, UserEngaged
//	EngagedWithOwner             other        WaitingForUser, UserAssigned
//	WaitingForUser/EngagedWithUser zero       EngagedWithOwner, OwnerEngaged
//	WaitingForUser/EngagedWithUser owner      EngagedWithUser, UserEngaged
//	WaitingForUser/EngagedWithUser other      WaitingForUser, UserAssigned
//
// Every successful call clears the user commitment and any pending user session.
func (p *Protocol) SetUser(ctx context.Context, caller identity.Address, id identity.TokenID, newUser identity.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Exists() || caller.IsZero() || caller != rec.Owner {
		return ErrAccessDenied
	}

	switch rec.State {
	case storage.WaitingForOwner:
		return errUserBeforeOwner
	case storage.EngagedWithOwner:
		if newUser.IsZero() {
			return errRedundantUser
		}
	case storage.WaitingForUser, storage.EngagedWithUser:
	default:
		return ErrInvalidState
	}

	var event journal.Event
	switch {
	case newUser.IsZero():
		rec.State = storage.EngagedWithOwner
		event = journal.OwnerEngaged(id)
	case newUser == rec.Owner:
		rec.State = storage.EngagedWithUser
		event = journal.UserEngaged(id)
	default:
		rec.State = storage.WaitingForUser
		event = journal.UserAssigned(id, newUser)
	}
	rec.User = newUser
	rec.HashUserDevice = identity.Hash{}
	if rec.DataEngagement.PendingFor(storage.RoleUser) {
		rec.DataEngagement = storage.Engagement{}
	}

	if err := p.store.Update(ctx, p.authority, id, rec); err != nil {
		return err
	}

	p.emit(event)
	return nil
}

// StartUserEngagement records the assigned user's half of a pairing session.
func (p *Protocol) StartUserEngagement(ctx context.Context, caller identity.Address, id identity.TokenID, publicKey []byte, expectedHash identity.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Exists() || caller.IsZero() || caller != rec.User {
		return ErrInvalidUser
	}
	if rec.State != storage.WaitingForUser {
		return ErrNoUserPending
	}
	if err := checkCommitment(publicKey, expectedHash); err != nil {
		return err
	}

	rec.DataEngagement = pending(storage.RoleUser, publicKey, expectedHash)
	rec.Timestamp = p.unixNow()
	if err := p.store.Update(ctx, p.authority, id, rec); err != nil {
		return err
	}

	p.logger.Debug("user engagement started", "token_id", id.String(), "user", caller.Hex())
	return nil
}

// UserEngagement confirms the user session from the device side.
func (p *Protocol) UserEngagement(ctx context.Context, caller identity.Address, hash identity.Hash) (identity.TokenID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, rec, err := DeviceRecord(ctx, p.store, caller)
	if err != nil {
		return identity.ZeroTokenID, err
	}
	if rec.State != storage.WaitingForUser {
		return identity.ZeroTokenID, ErrNoUserPending
	}
	if !rec.DataEngagement.PendingFor(storage.RoleUser) {
		return identity.ZeroTokenID, ErrNotStarted
	}
	if hash != rec.DataEngagement.ExpectedHash {
		p.logger.Warn("user engagement hash mismatch", "token_id", id.String())
		return identity.ZeroTokenID, ErrHandshakeFailed
	}

	rec.HashUserDevice = hash
	rec.DataEngagement = storage.Engagement{}
	rec.State = storage.EngagedWithUser
	if err := p.store.Update(ctx, p.authority, id, rec); err != nil {
		return identity.ZeroTokenID, err
	}

	p.emit(journal.UserEngaged(id))
	return id, nil
}

// DeviceRecord resolves the credential bound to a calling device.
// It fails with ErrUnregistered when no credential names caller as its device.
func DeviceRecord(ctx context.Context, store storage.Store, caller identity.Address) (identity.TokenID, storage.Record, error) {
	if caller.IsZero() {
		return identity.ZeroTokenID, storage.Record{}, ErrUnregistered
	}
	id, err := store.FindByDevice(ctx, caller)
	if err != nil {
		return identity.ZeroTokenID, storage.Record{}, err
	}
	if id.IsZero() {
		return identity.ZeroTokenID, storage.Record{}, ErrUnregistered
	}
	rec, err := store.FindByID(ctx, id)
	if err != nil {
		return identity.ZeroTokenID, storage.Record{}, err
	}
	if !rec.Exists() || rec.Device != caller {
		return identity.ZeroTokenID, storage.Record{}, ErrUnregistered
	}
	return id, rec, nil
}

func (p *Protocol) emit(event journal.Event) {
	p.events.Log(event.At(p.now()))
}

func (p *Protocol) unixNow() uint64 {
	return uint64(p.now().Unix())
}

func checkCommitment(publicKey []byte, expectedHash identity.Hash) error {
	if len(publicKey) == 0 {
		return errNoPublicKey
	}
	if expectedHash.IsZero() {
		return errNoExpectedHash
	}
	return nil
}

func pending(role storage.Role, publicKey []byte, expectedHash identity.Hash) storage.Engagement {
	return storage.Engagement{
		Role:         role,
		PublicKey:    append([]byte(nil), publicKey...),
		ExpectedHash: expectedHash,
	}
}
