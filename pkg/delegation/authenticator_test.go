package delegation

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartkey-protocol/smartkey-go/pkg/fault"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

var (
	writer = identity.MustParseAddress("0x5000000000000000000000000000000000000005")
	owner  = identity.MustParseAddress("0x000000000000000000000000000000000000a11c")
	device = identity.MustParseAddress("0xc000000000000000000000000000000000000001")
	token  = identity.TokenIDFromAddress(device)
)

type fixture struct {
	ctx      context.Context
	store    *storage.MemoryStore
	events   *journal.MemoryLogger
	userKey  *secp256k1.PrivateKey
	userAddr identity.Address
}

func newFixture(t *testing.T, state storage.State) *fixture {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)

	f := &fixture{
		ctx:      context.Background(),
		store:    storage.NewMemoryStore(writer),
		events:   journal.NewMemoryLogger(),
		userKey:  key,
		userAddr: AddressFromPublicKey(key.PubKey()),
	}

	rec := storage.Record{
		Owner:           owner,
		Device:          device,
		State:           state,
		HashOwnerDevice: identity.Keccak256([]byte("od")),
	}
	if state.IsUserState() {
		rec.User = f.userAddr
	}
	require.NoError(t, f.store.Create(f.ctx, writer, token, rec))
	return f
}

func (f *fixture) authenticator(ledger ReplayLedger) *Authenticator {
	return NewAuthenticator(f.store, Config{
		Authority:    writer,
		Events:       f.events,
		ReplayLedger: ledger,
	})
}

func (f *fixture) record(t *testing.T) storage.Record {
	t.Helper()
	rec, err := f.store.FindByID(f.ctx, token)
	require.NoError(t, err)
	return rec
}

func TestDelegateUserEngagement(t *testing.T) {
	req := Request{RequestType: RequestUserEngagement, Timestamp: 1700000000, Nonce: 42}

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		auth := f.authenticator(nil)

		id, err := auth.DelegateUserEngagement(f.ctx, device, req, Sign(f.userKey, req))
		require.NoError(t, err)
		assert.Equal(t, token, id)

		rec := f.record(t)
		assert.Equal(t, storage.EngagedWithUser, rec.State)
		assert.Equal(t, f.userAddr, rec.User)
		assert.Equal(t, []journal.Kind{journal.KindUserEngaged}, f.events.Kinds())
	})

	t.Run("ClearsPendingUserSession", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		rec := f.record(t)
		rec.DataEngagement = storage.Engagement{Role: storage.RoleUser, PublicKey: []byte{4}, ExpectedHash: identity.Keccak256([]byte("x"))}
		require.NoError(t, f.store.Update(f.ctx, writer, token, rec))

		_, err := f.authenticator(nil).DelegateUserEngagement(f.ctx, device, req, Sign(f.userKey, req))
		require.NoError(t, err)
		assert.True(t, f.record(t).DataEngagement.IsZero())
	})

	t.Run("WrongSigner", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		other, err := GenerateKey()
		require.NoError(t, err)
		before := f.record(t)

		_, err = f.authenticator(nil).DelegateUserEngagement(f.ctx, device, req, Sign(other, req))
		assert.ErrorIs(t, err, ErrBadSignature)
		assert.Equal(t, "signature does not match the assigned user", err.Error())
		assert.Equal(t, fault.KindCrypto, fault.KindOf(err))

		assert.Equal(t, before, f.record(t))
		assert.Equal(t, storage.WaitingForUser, f.record(t).State)
		assert.Empty(t, f.events.Events())
	})

	t.Run("SignatureOverDifferentRequest", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		sig := Sign(f.userKey, req)

		tampered := req
		tampered.Nonce++
		_, err := f.authenticator(nil).DelegateUserEngagement(f.ctx, device, tampered, sig)
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("MalformedSignature", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		_, err := f.authenticator(nil).DelegateUserEngagement(f.ctx, device, req, []byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("NotWaitingForUser", func(t *testing.T) {
		for _, state := range []storage.State{storage.EngagedWithOwner, storage.EngagedWithUser} {
			f := newFixture(t, state)
			_, err := f.authenticator(nil).DelegateUserEngagement(f.ctx, device, req, Sign(f.userKey, req))
			assert.ErrorIs(t, err, ErrBadSignature, state.String())
			assert.Equal(t, state, f.record(t).State)
		}
	})

	t.Run("CallerMustBeDevice", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		_, err := f.authenticator(nil).DelegateUserEngagement(f.ctx, f.userAddr, req, Sign(f.userKey, req))
		assert.ErrorIs(t, err, ErrUnregistered)
		assert.Equal(t, fault.KindAuthorization, fault.KindOf(err))
	})

	t.Run("ReplayWithoutLedgerSucceeds", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		auth := f.authenticator(nil)
		sig := Sign(f.userKey, req)

		_, err := auth.DelegateUserEngagement(f.ctx, device, req, sig)
		require.NoError(t, err)

		// Owner re-assigns the same user; the captured signature still works.
		rec := f.record(t)
		rec.State = storage.WaitingForUser
		require.NoError(t, f.store.Update(f.ctx, writer, token, rec))

		_, err = auth.DelegateUserEngagement(f.ctx, device, req, sig)
		assert.NoError(t, err)
	})

	t.Run("ReplayWithLedgerRejected", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		auth := f.authenticator(NewMemoryReplayLedger(time.Hour, 16))
		sig := Sign(f.userKey, req)

		_, err := auth.DelegateUserEngagement(f.ctx, device, req, sig)
		require.NoError(t, err)

		rec := f.record(t)
		rec.State = storage.WaitingForUser
		require.NoError(t, f.store.Update(f.ctx, writer, token, rec))

		_, err = auth.DelegateUserEngagement(f.ctx, device, req, sig)
		assert.ErrorIs(t, err, ErrReplayedRequest)
		assert.Equal(t, storage.WaitingForUser, f.record(t).State)

		// A fresh nonce is accepted.
		fresh := req
		fresh.Nonce++
		_, err = auth.DelegateUserEngagement(f.ctx, device, fresh, Sign(f.userKey, fresh))
		assert.NoError(t, err)
	})

	t.Run("RejectedRequestDoesNotConsumeLedger", func(t *testing.T) {
		f := newFixture(t, storage.EngagedWithOwner)
		ledger := NewMemoryReplayLedger(time.Hour, 16)
		_, err := f.authenticator(ledger).DelegateUserEngagement(f.ctx, device, req, Sign(f.userKey, req))
		assert.ErrorIs(t, err, ErrBadSignature)
		assert.Zero(t, ledger.Len())
	})

	t.Run("FailedWriteReleasesLedger", func(t *testing.T) {
		f := newFixture(t, storage.WaitingForUser)
		ledger := NewMemoryReplayLedger(time.Hour, 16)

		// An authenticator without write authority fails at the store.
		outsider := identity.MustParseAddress("0x00000000000000000000000000000000000000bb")
		auth := NewAuthenticator(f.store, Config{Authority: outsider, Events: f.events, ReplayLedger: ledger})
		_, err := auth.DelegateUserEngagement(f.ctx, device, req, Sign(f.userKey, req))
		assert.ErrorIs(t, err, storage.ErrAccessDenied)
		assert.Zero(t, ledger.Len())
		assert.Equal(t, storage.WaitingForUser, f.record(t).State)
		assert.Empty(t, f.events.Events())

		// The same signed request succeeds once the write can happen.
		id, err := f.authenticator(ledger).DelegateUserEngagement(f.ctx, device, req, Sign(f.userKey, req))
		require.NoError(t, err)
		assert.Equal(t, token, id)
		assert.Equal(t, storage.EngagedWithUser, f.record(t).State)
		assert.Equal(t, 1, ledger.Len())
	})
}
