package delegation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/engagement"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

// Config configures an Authenticator.
type Config struct {
	// Authority is the identity used for store writes.
	Authority identity.Address

	// Events receives UserEngaged.
	Events journal.Logger

	// ReplayLedger rejects reused requests. Nil disables replay protection.
	ReplayLedger ReplayLedger

	// ReplayTTL is how long an accepted request is remembered.
	ReplayTTL time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger is the operational logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Authenticator verifies delegated user engagements.
type Authenticator struct {
	mu sync.Mutex

	store     storage.Store
	authority identity.Address
	events    journal.Logger
	ledger    ReplayLedger
	replayTTL time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewAuthenticator creates an Authenticator over store.
func NewAuthenticator(store storage.Store, cfg Config) *Authenticator {
	a := &Authenticator{
		store:     store,
		authority: cfg.Authority,
		events:    cfg.Events,
		ledger:    cfg.ReplayLedger,
		replayTTL: cfg.ReplayTTL,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
	if a.events == nil {
		a.events = journal.NoopLogger{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.ledger == nil {
		a.logger.Warn("delegated engagement has no replay ledger; signed requests can be reused")
	}
	return a
}

// DelegateUserEngagement engages the assigned user of the calling device's
// credential on the strength of the user's signature over req.
// On failure the record is left as it was, so the device may retry.
func (a *Authenticator) DelegateUserEngagement(ctx context.Context, caller identity.Address, req Request, sig []byte) (identity.TokenID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, rec, err := engagement.DeviceRecord(ctx, a.store, caller)
	if err != nil {
		return identity.ZeroTokenID, err
	}

	signer, err := RecoverSigner(req, sig)
	if err != nil {
		a.logger.Warn("delegated engagement rejected", "token_id", id.String(), "error", err)
		return identity.ZeroTokenID, err
	}
	if rec.State != storage.WaitingForUser || rec.User.IsZero() || signer != rec.User {
		a.logger.Warn("delegated engagement rejected",
			"token_id", id.String(),
			"state", rec.State.String(),
			"signer", signer.Hex())
		return identity.ZeroTokenID, ErrBadSignature
	}

	key := replayKey(caller, signer, req)
	if a.ledger != nil {
		claimed, err := a.ledger.Claim(ctx, key, a.replayTTL)
		if err != nil {
			return identity.ZeroTokenID, fmt.Errorf("replay ledger: %w", err)
		}
		if !claimed {
			return identity.ZeroTokenID, ErrReplayedRequest
		}
	}

	rec.State = storage.EngagedWithUser
	if rec.DataEngagement.PendingFor(storage.RoleUser) {
		rec.DataEngagement = storage.Engagement{}
	}
	if err := a.store.Update(ctx, a.authority, id, rec); err != nil {
		// The request was not applied, so it must stay usable for a retry.
		if a.ledger != nil {
			if relErr := a.ledger.Release(ctx, key); relErr != nil {
				a.logger.Error("failed to release replay key", "token_id", id.String(), "error", relErr)
			}
		}
		return identity.ZeroTokenID, err
	}

	a.events.Log(journal.UserEngaged(id).At(a.now()))
	return id, nil
}

func replayKey(device, signer identity.Address, req Request) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d", device.Hex(), signer.Hex(), req.RequestType, req.Timestamp, req.Nonce)
}
