package interactive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/smartkey-protocol/smartkey-go/pkg/delegation"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
	"github.com/smartkey-protocol/smartkey-go/pkg/pairing"
	"github.com/smartkey-protocol/smartkey-go/pkg/registry"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

// Well-known principals of a simulation.
const (
	ManufacturerName = "manufacturer"
	RegistryName     = "registry"
	deployerName     = "deployer"
)

// Principal is a named simulated key holder: a manufacturer, person or car.
type Principal struct {
	Name    string
	Address identity.Address
	key     *secp256k1.PrivateKey
}

// Simulation runs an in-process registry with generated principals.
type Simulation struct {
	mu         sync.Mutex
	principals map[string]*Principal
	clock      time.Time
	nonce      uint64

	store    storage.Store
	registry *registry.Registry
	events   *journal.MemoryLogger
}

// NewSimulation creates a memory-backed registry whose store authority has
// already been handed over by a simulated deployer.
func NewSimulation(logger *slog.Logger) (*Simulation, error) {
	s := &Simulation{
		principals: make(map[string]*Principal),
		clock:      time.Now().UTC().Truncate(time.Second),
		events:     journal.NewMemoryLogger(),
	}

	deployer, err := s.Principal(deployerName)
	if err != nil {
		return nil, err
	}
	regAddr, err := s.Principal(RegistryName)
	if err != nil {
		return nil, err
	}
	mfr, err := s.Principal(ManufacturerName)
	if err != nil {
		return nil, err
	}

	s.store = storage.NewMemoryStore(deployer.Address)
	s.registry, err = registry.New(s.store, registry.Config{
		Address:        regAddr.Address,
		Manufacturer:   mfr.Address,
		DefaultTimeout: time.Hour,
		Events:         s.events,
		ReplayLedger:   delegation.NewMemoryReplayLedger(time.Hour, 0),
		ReplayTTL:      time.Hour,
		Now:            s.now,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.TransferAuthority(context.Background(), deployer.Address, regAddr.Address); err != nil {
		return nil, err
	}
	return s, nil
}

// Registry returns the simulated registry.
func (s *Simulation) Registry() *registry.Registry {
	return s.registry
}

// Events returns every event emitted so far.
func (s *Simulation) Events() []journal.Event {
	return s.events.Events()
}

// Principal returns the principal called name, generating a key for it on
// first use.
func (s *Simulation) Principal(name string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.principals[name]; ok {
		return p, nil
	}
	if !validName(name) {
		return nil, fmt.Errorf("invalid principal name %q", name)
	}
	key, err := delegation.GenerateKey()
	if err != nil {
		return nil, err
	}
	p := &Principal{
		Name:    name,
		Address: delegation.AddressFromPublicKey(key.PubKey()),
		key:     key,
	}
	s.principals[name] = p
	return p, nil
}

// Principals returns all principals sorted by name.
func (s *Simulation) Principals() []*Principal {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NameOf returns the principal name behind addr, or its hex form.
func (s *Simulation) NameOf(addr identity.Address) string {
	if addr.IsZero() {
		return "-"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.principals {
		if p.Address == addr {
			return p.Name
		}
	}
	return addr.Hex()
}

// Advance moves the simulated clock forward.
func (s *Simulation) Advance(d time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = s.clock.Add(d)
	return s.clock
}

func (s *Simulation) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// TokenOf returns the credential id of a device principal.
func (s *Simulation) TokenOf(device string) (identity.TokenID, error) {
	p, err := s.Principal(device)
	if err != nil {
		return identity.ZeroTokenID, err
	}
	return identity.TokenIDFromAddress(p.Address), nil
}

// Mint registers device for owner as the manufacturer.
func (s *Simulation) Mint(ctx context.Context, device, owner string) (identity.TokenID, error) {
	mfr, dev, own, err := s.three(ManufacturerName, device, owner)
	if err != nil {
		return identity.ZeroTokenID, err
	}
	return s.registry.Mint(ctx, mfr.Address, dev.Address, own.Address)
}

// PairOwner runs the owner handshake between owner and device.
func (s *Simulation) PairOwner(ctx context.Context, owner, device string) error {
	return s.pair(ctx, owner, device, s.registry.StartOwnerEngagement, s.registry.OwnerEngagement)
}

// PairUser runs the user handshake between user and device.
func (s *Simulation) PairUser(ctx context.Context, user, device string) error {
	return s.pair(ctx, user, device, s.registry.StartUserEngagement, s.registry.UserEngagement)
}

type startFunc func(ctx context.Context, caller identity.Address, id identity.TokenID, publicKey []byte, expected identity.Hash) error
type confirmFunc func(ctx context.Context, caller identity.Address, hash identity.Hash) (identity.TokenID, error)

// pair derives the shared commitment on both sides: the principal offers its
// key and expected hash, and the device confirms with its own computation.
func (s *Simulation) pair(ctx context.Context, principal, device string, start startFunc, confirm confirmFunc) error {
	p, err := s.Principal(principal)
	if err != nil {
		return err
	}
	dev, err := s.Principal(device)
	if err != nil {
		return err
	}
	id := identity.TokenIDFromAddress(dev.Address)

	holder, err := pairing.NewSession()
	if err != nil {
		return err
	}
	firmware, err := pairing.NewSession()
	if err != nil {
		return err
	}

	expected, err := holder.Commitment(firmware.PublicKey(), id)
	if err != nil {
		return err
	}
	if err := start(ctx, p.Address, id, holder.PublicKey(), expected); err != nil {
		return err
	}

	hash, err := firmware.Commitment(holder.PublicKey(), id)
	if err != nil {
		return err
	}
	_, err = confirm(ctx, dev.Address, hash)
	return err
}

// Transfer moves the credential of device from one owner to another, acting
// as from.
func (s *Simulation) Transfer(ctx context.Context, from, to, device string) error {
	f, t, dev, err := s.three(from, to, device)
	if err != nil {
		return err
	}
	return s.registry.TransferFrom(ctx, f.Address, f.Address, t.Address, identity.TokenIDFromAddress(dev.Address))
}

// SetUser assigns user to the credential of device, acting as owner.
func (s *Simulation) SetUser(ctx context.Context, owner, device, user string) error {
	own, dev, u, err := s.three(owner, device, user)
	if err != nil {
		return err
	}
	return s.registry.SetUser(ctx, own.Address, identity.TokenIDFromAddress(dev.Address), u.Address)
}

// Delegate has the assigned user sign a fresh request which device presents
// to the registry.
func (s *Simulation) Delegate(ctx context.Context, user, device string) error {
	u, err := s.Principal(user)
	if err != nil {
		return err
	}
	dev, err := s.Principal(device)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.nonce++
	req := delegation.Request{
		RequestType: delegation.RequestUserEngagement,
		Timestamp:   uint64(s.clock.Unix()),
		Nonce:       s.nonce,
	}
	s.mu.Unlock()

	_, err = s.registry.DelegateUserEngagement(ctx, dev.Address, req, delegation.Sign(u.key, req))
	return err
}

// Burn destroys the credential of device, acting as owner.
func (s *Simulation) Burn(ctx context.Context, owner, device string) error {
	own, err := s.Principal(owner)
	if err != nil {
		return err
	}
	id, err := s.TokenOf(device)
	if err != nil {
		return err
	}
	return s.registry.Burn(ctx, own.Address, id)
}

// SetTimeout sets the session timeout of device's credential, acting as owner.
func (s *Simulation) SetTimeout(ctx context.Context, owner, device string, timeout time.Duration) error {
	own, err := s.Principal(owner)
	if err != nil {
		return err
	}
	id, err := s.TokenOf(device)
	if err != nil {
		return err
	}
	return s.registry.SetTimeout(ctx, own.Address, id, uint64(timeout/time.Second))
}

// Touch refreshes the session timestamp as device.
func (s *Simulation) Touch(ctx context.Context, device string) error {
	dev, err := s.Principal(device)
	if err != nil {
		return err
	}
	_, err = s.registry.UpdateTimestamp(ctx, dev.Address)
	return err
}

func (s *Simulation) three(a, b, c string) (*Principal, *Principal, *Principal, error) {
	pa, err := s.Principal(a)
	if err != nil {
		return nil, nil, nil, err
	}
	pb, err := s.Principal(b)
	if err != nil {
		return nil, nil, nil, err
	}
	pc, err := s.Principal(c)
	if err != nil {
		return nil, nil, nil, err
	}
	return pa, pb, pc, nil
}

func validName(name string) bool {
	if name == "" || len(name) > 32 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
