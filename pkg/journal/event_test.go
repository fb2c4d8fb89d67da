package journal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

var (
	owner  = identity.MustParseAddress("0x000000000000000000000000000000000000a11c")
	user   = identity.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	device = identity.MustParseAddress("0xc000000000000000000000000000000000000001")
	token  = identity.TokenIDFromAddress(device)
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		event     Event
		kind      Kind
		addresses []identity.Address
	}{
		{"mint", Transfer(identity.ZeroAddress, owner, token), KindTransfer, []identity.Address{identity.ZeroAddress, owner}},
		{"approval", Approval(owner, user, token), KindApproval, []identity.Address{owner, user}},
		{"operator", ApprovalForAll(owner, user, true), KindApprovalForAll, []identity.Address{owner, user}},
		{"owner engaged", OwnerEngaged(token), KindOwnerEngaged, nil},
		{"user engaged", UserEngaged(token), KindUserEngaged, nil},
		{"user assigned", UserAssigned(token, user), KindUserAssigned, []identity.Address{user}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.event.Kind)
			assert.Equal(t, tt.addresses, tt.event.Addresses())
		})
	}
}

func TestEventAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := UserEngaged(token).At(now)
	b := UserEngaged(token).At(now)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, now, a.Timestamp)
}

func TestKindNames(t *testing.T) {
	for k := KindTransfer; k <= KindUserAssigned; k++ {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "Unknown", Kind(42).String())

	_, err := ParseKind("transfer")
	assert.Error(t, err)
}

func TestEventCBORRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	events := []Event{
		Transfer(owner, user, token).At(now),
		ApprovalForAll(owner, user, true).At(now),
		UserAssigned(token, user).At(now),
		OwnerEngaged(token).At(now),
	}

	for _, want := range events {
		t.Run(want.Kind.String(), func(t *testing.T) {
			data, err := EncodeEvent(want)
			require.NoError(t, err)

			got, err := DecodeEvent(data)
			require.NoError(t, err)

			assert.Equal(t, want.ID, got.ID)
			assert.True(t, want.Timestamp.Equal(got.Timestamp))
			assert.Equal(t, want.Kind, got.Kind)
			assert.Equal(t, want.TokenID, got.TokenID)
			assert.Equal(t, want.Transfer, got.Transfer)
			assert.Equal(t, want.Operator, got.Operator)
			assert.Equal(t, want.User, got.User)
		})
	}
}

func TestEventJSON(t *testing.T) {
	e := Transfer(identity.ZeroAddress, owner, token)
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "Transfer", fields["kind"])
	assert.Equal(t, token.String(), fields["token_id"])
	assert.NotContains(t, fields, "approval")
}
