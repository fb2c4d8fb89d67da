package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartkey-protocol/smartkey-go/pkg/fault"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

var (
	writer   = identity.MustParseAddress("0x5000000000000000000000000000000000000005")
	owner    = identity.MustParseAddress("0x000000000000000000000000000000000000a11c")
	user     = identity.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	stranger = identity.MustParseAddress("0x00000000000000000000000000000000000000bb")
	device   = identity.MustParseAddress("0xc000000000000000000000000000000000000001")
	token    = identity.TokenIDFromAddress(device)

	ownerKey   = []byte{0x04, 0x0a, 0x0b}
	userKey    = []byte{0x04, 0x0c, 0x0d}
	ownerHash  = identity.Keccak256([]byte("owner-device secret"))
	userHash   = identity.Keccak256([]byte("user-device secret"))
	wrongHash  = identity.Keccak256([]byte("wrong"))
	fixedClock = time.Unix(1700000000, 0)
)

type fixture struct {
	ctx    context.Context
	store  *storage.MemoryStore
	events *journal.MemoryLogger
	p      *Protocol
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		store:  storage.NewMemoryStore(writer),
		events: journal.NewMemoryLogger(),
	}
	f.p = New(f.store, Config{
		Authority: writer,
		Events:    f.events,
		Now:       func() time.Time { return fixedClock },
	})
	require.NoError(t, f.store.Create(f.ctx, writer, token, storage.Record{
		Owner:   owner,
		Device:  device,
		State:   storage.WaitingForOwner,
		Timeout: 3600,
	}))
	return f
}

func (f *fixture) record(t *testing.T) storage.Record {
	t.Helper()
	rec, err := f.store.FindByID(f.ctx, token)
	require.NoError(t, err)
	return rec
}

// pairOwner runs a complete owner handshake.
func (f *fixture) pairOwner(t *testing.T, hash identity.Hash) {
	t.Helper()
	require.NoError(t, f.p.StartOwnerEngagement(f.ctx, owner, token, ownerKey, hash))
	id, err := f.p.OwnerEngagement(f.ctx, device, hash)
	require.NoError(t, err)
	require.Equal(t, token, id)
}

// moveTo drives the credential into state.
func (f *fixture) moveTo(t *testing.T, state storage.State) {
	t.Helper()
	switch state {
	case storage.WaitingForOwner:
	case storage.EngagedWithOwner:
		f.pairOwner(t, ownerHash)
	case storage.WaitingForUser:
		f.pairOwner(t, ownerHash)
		require.NoError(t, f.p.SetUser(f.ctx, owner, token, user))
	case storage.EngagedWithUser:
		f.pairOwner(t, ownerHash)
		require.NoError(t, f.p.SetUser(f.ctx, owner, token, user))
		require.NoError(t, f.p.StartUserEngagement(f.ctx, user, token, userKey, userHash))
		_, err := f.p.UserEngagement(f.ctx, device, userHash)
		require.NoError(t, err)
	}
	require.Equal(t, state, f.record(t).State)
	f.events.Reset()
}

func TestOwnerEngagement(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.p.StartOwnerEngagement(f.ctx, owner, token, ownerKey, ownerHash))

		rec := f.record(t)
		assert.Equal(t, storage.WaitingForOwner, rec.State, "start must not change state")
		assert.Equal(t, storage.RoleOwner, rec.DataEngagement.Role)
		assert.Equal(t, ownerKey, rec.DataEngagement.PublicKey)
		assert.Equal(t, uint64(fixedClock.Unix()), rec.Timestamp)

		id, err := f.p.OwnerEngagement(f.ctx, device, ownerHash)
		require.NoError(t, err)
		assert.Equal(t, token, id)

		rec = f.record(t)
		assert.Equal(t, storage.EngagedWithOwner, rec.State)
		assert.Equal(t, ownerHash, rec.HashOwnerDevice)
		assert.True(t, rec.DataEngagement.IsZero())

		events := f.events.Events()
		require.Len(t, events, 1)
		assert.Equal(t, journal.KindOwnerEngaged, events[0].Kind)
		assert.Equal(t, token, events[0].TokenID)
		assert.Equal(t, fixedClock, events[0].Timestamp)
	})

	t.Run("StartRequiresOwner", func(t *testing.T) {
		f := newFixture(t)
		for _, caller := range []identity.Address{stranger, device, identity.ZeroAddress} {
			err := f.p.StartOwnerEngagement(f.ctx, caller, token, ownerKey, ownerHash)
			assert.ErrorIs(t, err, ErrAccessDenied)
			assert.Equal(t, fault.KindAuthorization, fault.KindOf(err))
		}

		missing := identity.TokenIDFromAddress(stranger)
		assert.ErrorIs(t, f.p.StartOwnerEngagement(f.ctx, owner, missing, ownerKey, ownerHash), ErrAccessDenied)
	})

	t.Run("StartRejectsEmptyCommitment", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.p.StartOwnerEngagement(f.ctx, owner, token, nil, ownerHash), ErrInvalidCommitment)
		assert.ErrorIs(t, f.p.StartOwnerEngagement(f.ctx, owner, token, ownerKey, identity.Hash{}), ErrInvalidCommitment)
		assert.True(t, f.record(t).DataEngagement.IsZero())
	})

	t.Run("ConfirmRequiresDevice", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.p.StartOwnerEngagement(f.ctx, owner, token, ownerKey, ownerHash))

		_, err := f.p.OwnerEngagement(f.ctx, owner, ownerHash)
		assert.ErrorIs(t, err, ErrUnregistered)
		assert.Equal(t, "caller is not the registered device", err.Error())

		_, err = f.p.OwnerEngagement(f.ctx, identity.ZeroAddress, ownerHash)
		assert.ErrorIs(t, err, ErrUnregistered)
	})

	t.Run("ConfirmWithoutSession", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.p.OwnerEngagement(f.ctx, device, ownerHash)
		assert.ErrorIs(t, err, ErrNotStarted)
		assert.Equal(t, fault.KindCrypto, fault.KindOf(err))
	})

	t.Run("MismatchChangesNothing", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.p.StartOwnerEngagement(f.ctx, owner, token, ownerKey, ownerHash))
		before := f.record(t)

		_, err := f.p.OwnerEngagement(f.ctx, device, wrongHash)
		assert.ErrorIs(t, err, ErrHandshakeFailed)
		assert.Equal(t, "ECDH setup fail", err.Error())

		after := f.record(t)
		assert.Equal(t, before, after)
		assert.Equal(t, storage.WaitingForOwner, after.State)
		assert.True(t, after.HashOwnerDevice.IsZero())
		assert.Empty(t, f.events.Events())

		// The device may retry with the right hash.
		_, err = f.p.OwnerEngagement(f.ctx, device, ownerHash)
		require.NoError(t, err)
	})

	t.Run("ReissueChangesOnlyHash", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.EngagedWithOwner)

		renewed := identity.Keccak256([]byte("renewed secret"))
		f.pairOwner(t, renewed)

		rec := f.record(t)
		assert.Equal(t, storage.EngagedWithOwner, rec.State)
		assert.Equal(t, renewed, rec.HashOwnerDevice)
	})

	t.Run("UserSessionDoesNotConfirmOwner", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.WaitingForUser)
		require.NoError(t, f.p.StartUserEngagement(f.ctx, user, token, userKey, userHash))

		_, err := f.p.OwnerEngagement(f.ctx, device, userHash)
		assert.ErrorIs(t, err, ErrNotStarted)
	})

	t.Run("OwnerReengagementRevokesUser", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.EngagedWithUser)

		f.pairOwner(t, ownerHash)

		rec := f.record(t)
		assert.Equal(t, storage.EngagedWithOwner, rec.State)
		assert.True(t, rec.User.IsZero())
		assert.True(t, rec.HashUserDevice.IsZero())

		n, err := f.store.BalanceOfUser(f.ctx, user)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSetUserTransitions(t *testing.T) {
	tests := []struct {
		from      storage.State
		target    identity.Address
		wantErr   error
		wantState storage.State
		wantUser  identity.Address
		wantEvent journal.Kind
	}{
		{from: storage.WaitingForOwner, target: identity.ZeroAddress, wantErr: ErrInvalidState},
		{from: storage.WaitingForOwner, target: owner, wantErr: ErrInvalidState},
		{from: storage.WaitingForOwner, target: user, wantErr: ErrInvalidState},

		{from: storage.EngagedWithOwner, target: identity.ZeroAddress, wantErr: ErrInvalidState},
		{from: storage.EngagedWithOwner, target: owner, wantState: storage.EngagedWithUser, wantUser: owner, wantEvent: journal.KindUserEngaged},
		{from: storage.EngagedWithOwner, target: user, wantState: storage.WaitingForUser, wantUser: user, wantEvent: journal.KindUserAssigned},

		{from: storage.WaitingForUser, target: identity.ZeroAddress, wantState: storage.EngagedWithOwner, wantEvent: journal.KindOwnerEngaged},
		{from: storage.WaitingForUser, target: owner, wantState: storage.EngagedWithUser, wantUser: owner, wantEvent: journal.KindUserEngaged},
		{from: storage.WaitingForUser, target: stranger, wantState: storage.WaitingForUser, wantUser: stranger, wantEvent: journal.KindUserAssigned},

		{from: storage.EngagedWithUser, target: identity.ZeroAddress, wantState: storage.EngagedWithOwner, wantEvent: journal.KindOwnerEngaged},
		{from: storage.EngagedWithUser, target: owner, wantState: storage.EngagedWithUser, wantUser: owner, wantEvent: journal.KindUserEngaged},
		{from: storage.EngagedWithUser, target: stranger, wantState: storage.WaitingForUser, wantUser: stranger, wantEvent: journal.KindUserAssigned},
	}

	for _, tt := range tests {
		name := tt.from.String() + "->" + targetName(tt.target)
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.moveTo(t, tt.from)
			before := f.record(t)

			err := f.p.SetUser(f.ctx, owner, token, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, fault.KindState, fault.KindOf(err))
				assert.Equal(t, before, f.record(t))
				assert.Empty(t, f.events.Events())
				return
			}
			require.NoError(t, err)

			rec := f.record(t)
			assert.Equal(t, tt.wantState, rec.State)
			assert.Equal(t, tt.wantUser, rec.User)
			assert.True(t, rec.HashUserDevice.IsZero())
			assert.Equal(t, ownerHash, rec.HashOwnerDevice)
			require.NoError(t, rec.Validate())

			events := f.events.Events()
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantEvent, events[0].Kind)
			if tt.wantEvent == journal.KindUserAssigned {
				assert.Equal(t, tt.target, events[0].User.User)
			}
		})
	}
}

func targetName(a identity.Address) string {
	switch a {
	case identity.ZeroAddress:
		return "zero"
	case owner:
		return "owner"
	default:
		return "third-party"
	}
}

func TestSetUserRequiresOwner(t *testing.T) {
	f := newFixture(t)
	f.moveTo(t, storage.EngagedWithOwner)

	assert.ErrorIs(t, f.p.SetUser(f.ctx, stranger, token, user), ErrAccessDenied)
	assert.ErrorIs(t, f.p.SetUser(f.ctx, user, token, user), ErrAccessDenied)
	assert.ErrorIs(t, f.p.SetUser(f.ctx, device, token, user), ErrAccessDenied)
}

func TestSetUserOwnerAsUser(t *testing.T) {
	f := newFixture(t)
	f.moveTo(t, storage.EngagedWithOwner)

	require.NoError(t, f.p.SetUser(f.ctx, owner, token, owner))

	rec := f.record(t)
	assert.Equal(t, storage.EngagedWithUser, rec.State)
	assert.Equal(t, owner, rec.User)

	n, err := f.store.BalanceOfUser(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestSetUserDropsPendingUserSession(t *testing.T) {
	f := newFixture(t)
	f.moveTo(t, storage.WaitingForUser)
	require.NoError(t, f.p.StartUserEngagement(f.ctx, user, token, userKey, userHash))

	require.NoError(t, f.p.SetUser(f.ctx, owner, token, stranger))
	assert.True(t, f.record(t).DataEngagement.IsZero())

	// The replaced user's session cannot be confirmed any more.
	_, err := f.p.UserEngagement(f.ctx, device, userHash)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSetUserKeepsPendingOwnerSession(t *testing.T) {
	f := newFixture(t)
	f.moveTo(t, storage.EngagedWithOwner)
	require.NoError(t, f.p.StartOwnerEngagement(f.ctx, owner, token, ownerKey, ownerHash))

	require.NoError(t, f.p.SetUser(f.ctx, owner, token, user))
	assert.True(t, f.record(t).DataEngagement.PendingFor(storage.RoleOwner))
}

func TestUserEngagement(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.WaitingForUser)

		require.NoError(t, f.p.StartUserEngagement(f.ctx, user, token, userKey, userHash))
		rec := f.record(t)
		assert.Equal(t, storage.WaitingForUser, rec.State)
		assert.Equal(t, storage.RoleUser, rec.DataEngagement.Role)

		id, err := f.p.UserEngagement(f.ctx, device, userHash)
		require.NoError(t, err)
		assert.Equal(t, token, id)

		rec = f.record(t)
		assert.Equal(t, storage.EngagedWithUser, rec.State)
		assert.Equal(t, userHash, rec.HashUserDevice)
		assert.True(t, rec.DataEngagement.IsZero())
		assert.Equal(t, []journal.Kind{journal.KindUserEngaged}, f.events.Kinds())
	})

	t.Run("StartRequiresAssignedUser", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.WaitingForUser)

		for _, caller := range []identity.Address{owner, stranger, device, identity.ZeroAddress} {
			err := f.p.StartUserEngagement(f.ctx, caller, token, userKey, userHash)
			assert.ErrorIs(t, err, ErrInvalidUser)
		}
	})

	t.Run("StartRequiresWaitingForUser", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.EngagedWithUser)

		err := f.p.StartUserEngagement(f.ctx, user, token, userKey, userHash)
		assert.ErrorIs(t, err, ErrNoUserPending)
	})

	t.Run("OwnerAsUserNeedsNoHandshake", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.EngagedWithOwner)
		require.NoError(t, f.p.SetUser(f.ctx, owner, token, owner))

		err := f.p.StartUserEngagement(f.ctx, owner, token, userKey, userHash)
		assert.ErrorIs(t, err, ErrNoUserPending)
	})

	t.Run("ConfirmChecks", func(t *testing.T) {
		f := newFixture(t)
		f.moveTo(t, storage.EngagedWithOwner)

		_, err := f.p.UserEngagement(f.ctx, device, userHash)
		assert.ErrorIs(t, err, ErrNoUserPending)

		require.NoError(t, f.p.SetUser(f.ctx, owner, token, user))

		_, err = f.p.UserEngagement(f.ctx, user, userHash)
		assert.ErrorIs(t, err, ErrUnregistered)

		_, err = f.p.UserEngagement(f.ctx, device, userHash)
		assert.ErrorIs(t, err, ErrNotStarted)

		require.NoError(t, f.p.StartUserEngagement(f.ctx, user, token, userKey, userHash))
		before := f.record(t)

		_, err = f.p.UserEngagement(f.ctx, device, wrongHash)
		assert.ErrorIs(t, err, ErrHandshakeFailed)
		assert.Equal(t, before, f.record(t))
		assert.Empty(t, f.events.Events())
	})
}

func TestProtocolWithoutStoreAuthority(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(writer)
	require.NoError(t, store.Create(ctx, writer, token, storage.Record{Owner: owner, Device: device}))

	p := New(store, Config{Authority: stranger})
	err := p.StartOwnerEngagement(ctx, owner, token, ownerKey, ownerHash)
	assert.ErrorIs(t, err, storage.ErrAccessDenied)
}
