package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/delegation"
	"github.com/smartkey-protocol/smartkey-go/pkg/engagement"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

// DefaultEngagementTimeout is the session timeout stored on newly minted
// credentials when none is configured.
const DefaultEngagementTimeout = time.Hour

// Config configures a Registry.
type Config struct {
	// Address is the registry's own identity. It must be handed the store
	// authority before any mutation can succeed.
	Address identity.Address

	// Manufacturer is the only identity allowed to mint.
	Manufacturer identity.Address

	// DefaultTimeout is stored as the timeout of new credentials.
	DefaultTimeout time.Duration

	// Events receives every credential event. Defaults to a NoopLogger.
	Events journal.Logger

	// ReplayLedger enables replay protection for delegated engagement.
	ReplayLedger delegation.ReplayLedger

	// ReplayTTL is how long accepted delegated requests are remembered.
	ReplayTTL time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger is the operational logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Registry is the credential registry.
type Registry struct {
	mu sync.RWMutex

	store          storage.Store
	address        identity.Address
	manufacturer   identity.Address
	defaultTimeout uint64
	events         journal.Logger
	now            func() time.Time
	logger         *slog.Logger

	engagement *engagement.Protocol
	delegation *delegation.Authenticator

	// Approvals are registry-local and do not survive a restart.
	approvals map[identity.TokenID]identity.Address
	operators map[identity.Address]map[identity.Address]bool
}

// New creates a registry over store.
func New(store storage.Store, cfg Config) (*Registry, error) {
	if store == nil {
		return nil, errors.New("registry: store is required")
	}
	if cfg.Address.IsZero() {
		return nil, errors.New("registry: address is required")
	}
	if cfg.Manufacturer.IsZero() {
		return nil, errors.New("registry: manufacturer is required")
	}

	r := &Registry{
		store:        store,
		address:      cfg.Address,
		manufacturer: cfg.Manufacturer,
		events:       cfg.Events,
		now:          cfg.Now,
		logger:       cfg.Logger,
		approvals:    make(map[identity.TokenID]identity.Address),
		operators:    make(map[identity.Address]map[identity.Address]bool),
	}
	if r.events == nil {
		r.events = journal.NoopLogger{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultEngagementTimeout
	}
	r.defaultTimeout = uint64(timeout / time.Second)

	r.engagement = engagement.New(store, engagement.Config{
		Authority: r.address,
		Events:    r.events,
		Now:       r.now,
		Logger:    r.logger,
	})
	r.delegation = delegation.NewAuthenticator(store, delegation.Config{
		Authority:    r.address,
		Events:       r.events,
		ReplayLedger: cfg.ReplayLedger,
		ReplayTTL:    cfg.ReplayTTL,
		Now:          r.now,
		Logger:       r.logger,
	})
	return r, nil
}

// Address returns the registry's identity.
func (r *Registry) Address() identity.Address {
	return r.address
}

// Manufacturer returns the minting identity.
func (r *Registry) Manufacturer() identity.Address {
	return r.manufacturer
}

// Ready reports whether the registry holds the store authority.
func (r *Registry) Ready(ctx context.Context) (bool, error) {
	authority, err := r.store.Authority(ctx)
	if err != nil {
		return false, err
	}
	return authority == r.address, nil
}

// Mint creates the credential of device, owned by owner.
func (r *Registry) Mint(ctx context.Context, caller, device, owner identity.Address) (identity.TokenID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.manufacturer {
		return identity.ZeroTokenID, errNotManufacturer
	}
	if device.IsZero() {
		return identity.ZeroTokenID, errZeroDevice
	}
	if owner.IsZero() {
		return identity.ZeroTokenID, errZeroOwner
	}

	id := identity.TokenIDFromAddress(device)
	existing, err := r.store.FindByID(ctx, id)
	if err != nil {
		return identity.ZeroTokenID, err
	}
	if existing.Exists() {
		return identity.ZeroTokenID, ErrDuplicateMint
	}

	rec := storage.Record{
		Owner:   owner,
		Device:  device,
		State:   storage.WaitingForOwner,
		Timeout: r.defaultTimeout,
	}
	if err := r.store.Create(ctx, r.address, id, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return identity.ZeroTokenID, ErrDuplicateMint
		}
		return identity.ZeroTokenID, err
	}

	r.logger.Info("credential minted", "token_id", id.String(), "device", device.Hex(), "owner", owner.Hex())
	r.emit(journal.Transfer(identity.ZeroAddress, owner, id))
	return id, nil
}

// Burn destroys a credential. Only its owner may burn it, in any state.
func (r *Registry) Burn(ctx context.Context, caller identity.Address, id identity.TokenID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return err
	}
	if caller.IsZero() || caller != rec.Owner {
		return errNotOwner
	}
	if err := r.store.Remove(ctx, r.address, id); err != nil {
		return err
	}
	delete(r.approvals, id)

	r.logger.Info("credential burned", "token_id", id.String(), "owner", rec.Owner.Hex())
	r.emit(journal.Transfer(rec.Owner, identity.ZeroAddress, id))
	return nil
}

// TransferFrom moves ownership from from to to. The caller must be the owner,
// the approved address or an approved operator, and the owner must have
// engaged with the device.
func (r *Registry) TransferFrom(ctx context.Context, caller, from, to identity.Address, id identity.TokenID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return err
	}
	if !r.authorizedLocked(caller, rec.Owner, id) {
		return errNotAuthorized
	}
	if from != rec.Owner {
		return ErrWrongOwner
	}
	if to.IsZero() {
		return errZeroRecipient
	}
	if rec.State != storage.EngagedWithOwner {
		return ErrInvalidState
	}

	rec.Owner = to
	if err := r.store.Update(ctx, r.address, id, rec); err != nil {
		return err
	}
	delete(r.approvals, id)

	r.logger.Info("credential transferred", "token_id", id.String(), "from", from.Hex(), "to", to.Hex())
	r.emit(journal.Transfer(from, to, id))
	return nil
}

// OwnerOf returns the owner of a credential.
func (r *Registry) OwnerOf(ctx context.Context, id identity.TokenID) (identity.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return identity.ZeroAddress, err
	}
	return rec.Owner, nil
}

// BalanceOf returns how many credentials owner holds.
func (r *Registry) BalanceOf(ctx context.Context, owner identity.Address) (uint64, error) {
	if owner.IsZero() {
		return 0, errZeroQuery
	}
	return r.store.BalanceOfOwner(ctx, owner)
}

// TotalSupply returns the number of live credentials.
func (r *Registry) TotalSupply(ctx context.Context) (uint64, error) {
	return r.store.TotalCount(ctx)
}

// Approve lets to transfer the credential. A zero to clears the approval.
// The owner or one of its operators may call it.
func (r *Registry) Approve(ctx context.Context, caller, to identity.Address, id identity.TokenID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return err
	}
	if to == rec.Owner {
		return errApproveOwner
	}
	if caller.IsZero() || (caller != rec.Owner && !r.operators[rec.Owner][caller]) {
		return errNotAuthorized
	}

	if to.IsZero() {
		delete(r.approvals, id)
	} else {
		r.approvals[id] = to
	}
	r.emit(journal.Approval(rec.Owner, to, id))
	return nil
}

// GetApproved returns the approved address of a credential, or zero.
func (r *Registry) GetApproved(ctx context.Context, id identity.TokenID) (identity.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.find(ctx, id); err != nil {
		return identity.ZeroAddress, err
	}
	return r.approvals[id], nil
}

// SetApprovalForAll enables or disables operator for all credentials of caller.
func (r *Registry) SetApprovalForAll(_ context.Context, caller, operator identity.Address, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller.IsZero() {
		return errNotAuthorized
	}
	if operator.IsZero() {
		return errZeroOperator
	}
	if operator == caller {
		return errApproveSelf
	}

	ops := r.operators[caller]
	if approved {
		if ops == nil {
			ops = make(map[identity.Address]bool)
			r.operators[caller] = ops
		}
		ops[operator] = true
	} else if ops != nil {
		delete(ops, operator)
		if len(ops) == 0 {
			delete(r.operators, caller)
		}
	}

	r.emit(journal.ApprovalForAll(caller, operator, approved))
	return nil
}

// IsApprovedForAll reports whether operator may manage all credentials of owner.
func (r *Registry) IsApprovedForAll(_ context.Context, owner, operator identity.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operators[owner][operator]
}

// UserOf returns the user of a credential, or zero when none is assigned.
func (r *Registry) UserOf(ctx context.Context, id identity.TokenID) (identity.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return identity.ZeroAddress, err
	}
	return rec.User, nil
}

// UserBalanceOf returns how many credentials name user as their user.
func (r *Registry) UserBalanceOf(ctx context.Context, user identity.Address) (uint64, error) {
	if user.IsZero() {
		return 0, errZeroQuery
	}
	return r.store.BalanceOfUser(ctx, user)
}

// TokenOfDevice returns the credential bound to device.
func (r *Registry) TokenOfDevice(ctx context.Context, device identity.Address) (identity.TokenID, error) {
	id, err := r.store.FindByDevice(ctx, device)
	if err != nil {
		return identity.ZeroTokenID, err
	}
	if id.IsZero() {
		return identity.ZeroTokenID, ErrNotFound
	}
	return id, nil
}

// Record returns the full credential record.
func (r *Registry) Record(ctx context.Context, id identity.TokenID) (storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.find(ctx, id)
}

func (r *Registry) find(ctx context.Context, id identity.TokenID) (storage.Record, error) {
	rec, err := r.store.FindByID(ctx, id)
	if err != nil {
		return storage.Record{}, err
	}
	if !rec.Exists() {
		return storage.Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *Registry) authorizedLocked(caller, owner identity.Address, id identity.TokenID) bool {
	if caller.IsZero() {
		return false
	}
	return caller == owner || r.approvals[id] == caller || r.operators[owner][caller]
}

func (r *Registry) emit(event journal.Event) {
	r.events.Log(event.At(r.now()))
}
