package interactive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
)

type shellHarness struct {
	ctx   context.Context
	sim   *Simulation
	shell *Shell
	out   *bytes.Buffer
}

func newShellHarness(t *testing.T) *shellHarness {
	t.Helper()
	sim, err := NewSimulation(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &shellHarness{
		ctx:   context.Background(),
		sim:   sim,
		shell: NewWithWriter(sim, out),
		out:   out,
	}
}

// run executes line and returns what it printed.
func (h *shellHarness) run(t *testing.T, line string) string {
	t.Helper()
	h.out.Reset()
	require.True(t, h.shell.Exec(h.ctx, line), "shell exited on %q", line)
	return h.out.String()
}

func (h *shellHarness) state(t *testing.T, device string) storage.State {
	t.Helper()
	id, err := h.sim.TokenOf(device)
	require.NoError(t, err)
	rec, err := h.sim.Registry().Record(h.ctx, id)
	require.NoError(t, err)
	return rec.State
}

func TestShellOwnerLifecycle(t *testing.T) {
	h := newShellHarness(t)

	assert.Contains(t, h.run(t, "mint car1 alice"), "Minted car1 for alice")
	assert.Equal(t, storage.WaitingForOwner, h.state(t, "car1"))

	// Transfer needs an engaged owner.
	assert.Contains(t, h.run(t, "transfer alice bob car1"), "Error:")

	assert.Contains(t, h.run(t, "pair-owner alice car1"), "car1 engaged with alice as owner")
	assert.Equal(t, storage.EngagedWithOwner, h.state(t, "car1"))

	assert.Contains(t, h.run(t, "transfer alice bob car1"), "Transferred car1 from alice to bob")
	assert.Contains(t, h.run(t, "balance alice"), "alice owns 0 and uses 0")
	assert.Contains(t, h.run(t, "balance bob"), "bob owns 1 and uses 0")

	out := h.run(t, "show car1")
	assert.Contains(t, out, "Owner:     bob")
	assert.Contains(t, out, "State:     EngagedWithOwner")

	assert.Contains(t, h.run(t, "burn alice car1"), "Error:")
	assert.Contains(t, h.run(t, "burn bob car1"), "Burned car1")
	assert.Contains(t, h.run(t, "show car1"), "Error:")
}

func TestShellUserPairing(t *testing.T) {
	h := newShellHarness(t)
	h.run(t, "mint car1 alice")
	h.run(t, "pair-owner alice car1")

	assert.Contains(t, h.run(t, "set-user alice car1 carol"), "Assigned carol as user of car1")
	assert.Equal(t, storage.WaitingForUser, h.state(t, "car1"))

	assert.Contains(t, h.run(t, "pair-user carol car1"), "car1 engaged with carol as user")
	assert.Equal(t, storage.EngagedWithUser, h.state(t, "car1"))
	assert.Contains(t, h.run(t, "balance carol"), "carol owns 0 and uses 1")
}

func TestShellDelegatedEngagement(t *testing.T) {
	h := newShellHarness(t)
	h.run(t, "mint car1 alice")
	h.run(t, "pair-owner alice car1")
	h.run(t, "set-user alice car1 dave")

	// Only the assigned user's signature is accepted.
	assert.Contains(t, h.run(t, "delegate mallory car1"), "Error:")
	assert.Equal(t, storage.WaitingForUser, h.state(t, "car1"))

	assert.Contains(t, h.run(t, "delegate dave car1"), "car1 engaged with dave as user")
	assert.Equal(t, storage.EngagedWithUser, h.state(t, "car1"))
}

func TestShellSessions(t *testing.T) {
	h := newShellHarness(t)
	h.run(t, "mint car1 alice")
	h.run(t, "pair-owner alice car1")

	assert.Contains(t, h.run(t, "timeout alice car1 30m"), "Timeout of car1 set to 30m0s")
	assert.Contains(t, h.run(t, "timeout bob car1 30m"), "Error:")
	assert.Contains(t, h.run(t, "timeout alice car1 soon"), "Invalid duration")

	assert.Contains(t, h.run(t, "touch car1"), "Session of car1 refreshed")
	assert.Contains(t, h.run(t, "expired car1"), "expired=false")

	assert.Contains(t, h.run(t, "advance 31m"), "Clock is now")
	assert.Contains(t, h.run(t, "expired car1"), "expired=true")

	// Expiry is advisory.
	assert.Contains(t, h.run(t, "transfer alice bob car1"), "Transferred")
}

func TestShellEvents(t *testing.T) {
	h := newShellHarness(t)
	assert.Contains(t, h.run(t, "events"), "No events")

	h.run(t, "mint car1 alice")
	h.run(t, "pair-owner alice car1")

	out := h.run(t, "events")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Transfer")
	assert.Contains(t, lines[0], "mint to=")
	assert.Contains(t, lines[1], "OwnerEngaged")

	out = h.run(t, "events 1")
	assert.NotContains(t, out, "Transfer")
	assert.Contains(t, out, "OwnerEngaged")

	assert.Contains(t, h.run(t, "events x"), "Invalid count")
}

func TestShellDispatch(t *testing.T) {
	h := newShellHarness(t)

	assert.Empty(t, h.run(t, "   "))
	assert.Contains(t, h.run(t, "help"), "SmartKey Simulator Commands")
	assert.Contains(t, h.run(t, "frobnicate"), "Unknown command: frobnicate")
	assert.Contains(t, h.run(t, "mint car1"), "Usage: mint <device> <owner>")
	assert.Contains(t, h.run(t, "mint Car! alice"), "invalid principal name")

	h.run(t, "mint car1 alice")
	out := h.run(t, "principals")
	for _, name := range []string{"alice", "car1", ManufacturerName, RegistryName} {
		assert.Contains(t, out, name)
	}

	h.out.Reset()
	assert.False(t, h.shell.Exec(h.ctx, "quit"))
	assert.Contains(t, h.out.String(), "Exiting...")
}

func TestSimulationPrincipals(t *testing.T) {
	h := newShellHarness(t)

	a, err := h.sim.Principal("alice")
	require.NoError(t, err)
	again, err := h.sim.Principal("alice")
	require.NoError(t, err)
	assert.Same(t, a, again)

	assert.Equal(t, "alice", h.sim.NameOf(a.Address))
	assert.Equal(t, "-", h.sim.NameOf(identity.ZeroAddress))
}
