package registry

import (
	"context"
	"math"

	"github.com/smartkey-protocol/smartkey-go/pkg/delegation"
	"github.com/smartkey-protocol/smartkey-go/pkg/engagement"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// StartOwnerEngagement forwards to the engagement protocol.
func (r *Registry) StartOwnerEngagement(ctx context.Context, caller identity.Address, id identity.TokenID, publicKey []byte, expectedHash identity.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engagement.StartOwnerEngagement(ctx, caller, id, publicKey, expectedHash)
}

// OwnerEngagement forwards to the engagement protocol.
func (r *Registry) OwnerEngagement(ctx context.Context, caller identity.Address, hash identity.Hash) (identity.TokenID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engagement.OwnerEngagement(ctx, caller, hash)
}

// SetUser forwards to the engagement protocol.
func (r *Registry) SetUser(ctx context.Context, caller identity.Address, id identity.TokenID, user identity.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engagement.SetUser(ctx, caller, id, user)
}

// StartUserEngagement forwards to the engagement protocol.
func (r *Registry) StartUserEngagement(ctx context.Context, caller identity.Address, id identity.TokenID, publicKey []byte, expectedHash identity.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engagement.StartUserEngagement(ctx, caller, id, publicKey, expectedHash)
}

// UserEngagement forwards to the engagement protocol.
func (r *Registry) UserEngagement(ctx context.Context, caller identity.Address, hash identity.Hash) (identity.TokenID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engagement.UserEngagement(ctx, caller, hash)
}

// DelegateUserEngagement forwards to delegated authentication.
func (r *Registry) DelegateUserEngagement(ctx context.Context, caller identity.Address, req delegation.Request, sig []byte) (identity.TokenID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delegation.DelegateUserEngagement(ctx, caller, req, sig)
}

// SetTimeout sets the session timeout of a credential, in seconds.
// Only the owner may call it.
func (r *Registry) SetTimeout(ctx context.Context, caller identity.Address, id identity.TokenID, timeout uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return err
	}
	if caller.IsZero() || caller != rec.Owner {
		return errNotOwner
	}
	rec.Timeout = timeout
	return r.store.Update(ctx, r.address, id, rec)
}

// UpdateTimestamp refreshes the session timestamp of the calling device's
// credential and returns its id.
func (r *Registry) UpdateTimestamp(ctx context.Context, caller identity.Address) (identity.TokenID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, rec, err := engagement.DeviceRecord(ctx, r.store, caller)
	if err != nil {
		return identity.ZeroTokenID, err
	}
	rec.Timestamp = uint64(r.now().Unix())
	if err := r.store.Update(ctx, r.address, id, rec); err != nil {
		return identity.ZeroTokenID, err
	}
	return id, nil
}

// CheckTimeout reports whether the session of a credential has expired, that
// is whether timestamp+timeout lies in the past. The result is advisory: no
// operation is refused because a session expired.
func (r *Registry) CheckTimeout(ctx context.Context, id identity.TokenID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.find(ctx, id)
	if err != nil {
		return false, err
	}
	// A deadline past the uint64 range never expires.
	if rec.Timeout > math.MaxUint64-rec.Timestamp {
		return false, nil
	}
	now := r.now().Unix()
	if now < 0 {
		return false, nil
	}
	return uint64(now) > rec.Timestamp+rec.Timeout, nil
}
