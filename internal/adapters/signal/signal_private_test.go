package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Gather/internal/adapters/directory"
	"github.com/dkeye/Gather/internal/app"
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

type fixture struct {
	ctl *SessionWSController
	dir *directory.InMemory
}

func newFixture() *fixture {
	dir := directory.NewInMemory()
	registry := app.NewRegistry(dir)
	return &fixture{
		ctl: NewSessionWSController(registry, app.NewHub(), dir, 0, 0),
		dir: dir,
	}
}

// client wires a per-connection state and an unpumped conn so handler
// output lands in the send queue where the test can read it.
func (f *fixture) client(token app.ClientToken) (*clientState, *WsSessionConn) {
	return &clientState{
		token: token,
		ctrl:  f.ctl.Registry.GetOrCreate(token),
	}, newWsSessionConn(nil)
}

func (f *fixture) command(client *clientState, c *WsSessionConn, format string, args ...any) {
	f.ctl.handleCommand(context.Background(), client, c, []byte(fmt.Sprintf(format, args...)))
}

// drain decodes everything queued on the conn, keyed by event type.
func drain(t *testing.T, c *WsSessionConn) []map[string]json.RawMessage {
	t.Helper()
	var out []map[string]json.RawMessage
	for {
		select {
		case data := <-c.send:
			var m map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func eventTypes(events []map[string]json.RawMessage) []string {
	var types []string
	for _, e := range events {
		var s string
		_ = json.Unmarshal(e["type"], &s)
		types = append(types, s)
	}
	return types
}

func lastState(t *testing.T, events []map[string]json.RawMessage) core.RoomSession {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		var s string
		_ = json.Unmarshal(events[i]["type"], &s)
		if s == "state" {
			var snap core.RoomSession
			require.NoError(t, json.Unmarshal(events[i]["session"], &snap))
			return snap
		}
	}
	t.Fatal("no state event queued")
	return core.RoomSession{}
}

func errorCodeOf(t *testing.T, events []map[string]json.RawMessage) string {
	t.Helper()
	for _, e := range events {
		var s string
		_ = json.Unmarshal(e["type"], &s)
		if s == "error" {
			var code string
			require.NoError(t, json.Unmarshal(e["code"], &code))
			return code
		}
	}
	t.Fatal("no error event queued")
	return ""
}

func TestHandleJoin(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")
	client, conn := f.client("tok-a")

	f.command(client, conn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)

	events := drain(t, conn)
	snap := lastState(t, events)
	assert.Equal(t, core.PhaseActive, snap.Phase)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "Alice", snap.Participants[0].DisplayName)
	assert.Equal(t, domain.RoleHost, snap.Participants[0].Role)
	assert.Equal(t, 1, f.ctl.Hub.Occupancy(m.ID))
	assert.Equal(t, 1, f.dir.Occupancy(m.ID))
}

func TestHandleJoinUnknownRoom(t *testing.T) {
	f := newFixture()
	client, conn := f.client("tok-a")

	f.command(client, conn, `{"type":"join","roomId":"nope","displayName":"Alice"}`)

	assert.Equal(t, "room_unavailable", errorCodeOf(t, drain(t, conn)))
}

func TestSecondClientSeesFirst(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	drain(t, aliceConn)

	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)

	// Bob's snapshot: self first, then the existing roster
	snap := lastState(t, drain(t, bobConn))
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "Bob", snap.Participants[0].DisplayName)
	assert.Equal(t, domain.RoleAttendee, snap.Participants[0].Role)
	assert.Equal(t, "Alice", snap.Participants[1].DisplayName)

	// Alice's session observed Bob's join as a pushed state event
	snap = lastState(t, drain(t, aliceConn))
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "Alice", snap.Participants[0].DisplayName)
	assert.Equal(t, "Bob", snap.Participants[1].DisplayName)
}

func TestChatIsRelayedToPeers(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	drain(t, bobConn)

	f.command(alice, aliceConn, `{"type":"chat","body":"  hello  "}`)

	snap := lastState(t, drain(t, bobConn))
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.Messages[0].Body)

	snap = lastState(t, drain(t, aliceConn))
	require.Len(t, snap.Messages, 1)
}

func TestChatEmptyBody(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")
	client, conn := f.client("tok-a")
	f.command(client, conn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	drain(t, conn)

	f.command(client, conn, `{"type":"chat","body":"   "}`)

	assert.Equal(t, "empty_message", errorCodeOf(t, drain(t, conn)))
}

func TestToggleIsRelayedToPeers(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	drain(t, bobConn)

	f.command(alice, aliceConn, `{"type":"toggle_video"}`)

	snap := lastState(t, drain(t, bobConn))
	require.Len(t, snap.Participants, 2)
	assert.False(t, snap.Participants[1].VideoEnabled)
}

func TestCommandsBeforeJoin(t *testing.T) {
	f := newFixture()
	client, conn := f.client("tok-a")

	f.command(client, conn, `{"type":"toggle_video"}`)
	assert.Equal(t, "not_in_room", errorCodeOf(t, drain(t, conn)))

	f.command(client, conn, `{"type":"leave"}`)
	assert.Equal(t, "not_in_room", errorCodeOf(t, drain(t, conn)))
}

func TestHostRemovesPeer(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	bobSnap := lastState(t, drain(t, bobConn))
	bobID := bobSnap.SelfID

	f.command(alice, aliceConn, `{"type":"remove","targetId":%q}`, bobID)

	snap := lastState(t, drain(t, aliceConn))
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, 1, f.dir.Occupancy(m.ID))

	// the removed client's session is terminal and out of the relay
	snap = lastState(t, drain(t, bobConn))
	assert.Equal(t, core.PhaseLeft, snap.Phase)
	assert.Equal(t, 1, f.ctl.Hub.Occupancy(m.ID))
}

func TestRemovedClientDisconnectKeepsPeersActive(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	bobID := lastState(t, drain(t, bobConn)).SelfID

	f.command(alice, aliceConn, `{"type":"remove","targetId":%q}`, bobID)

	// the kicked client's socket goes away afterwards; its departure was
	// already announced, so the remover's session must not be disturbed
	f.ctl.disconnect(bob)

	snap := lastState(t, drain(t, aliceConn))
	assert.Equal(t, core.PhaseActive, snap.Phase)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "Alice", snap.Participants[0].DisplayName)
}

func TestAttendeeCannotRemove(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	aliceSnap := lastState(t, drain(t, aliceConn))
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, bobConn)

	f.command(bob, bobConn, `{"type":"remove","targetId":%q}`, aliceSnap.SelfID)

	assert.Equal(t, "forbidden", errorCodeOf(t, drain(t, bobConn)))
}

func TestTransferHostIsRelayed(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	bobID := lastState(t, drain(t, bobConn)).SelfID

	f.command(alice, aliceConn, `{"type":"transfer_host","targetId":%q}`, bobID)

	snap := lastState(t, drain(t, bobConn))
	self := snap.Self()
	require.NotNil(t, self)
	assert.Equal(t, domain.RoleHost, self.Role)

	snap = lastState(t, drain(t, aliceConn))
	assert.Equal(t, domain.RoleAttendee, snap.Self().Role)
}

func TestLeaveRelaysToPeers(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	drain(t, bobConn)

	f.command(bob, bobConn, `{"type":"leave"}`)

	snap := lastState(t, drain(t, aliceConn))
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, "Alice", snap.Participants[0].DisplayName)
	assert.Equal(t, 1, f.ctl.Hub.Occupancy(m.ID))
	assert.Equal(t, 1, f.dir.Occupancy(m.ID))
}

func TestPing(t *testing.T) {
	f := newFixture()
	client, conn := f.client("tok-a")

	f.command(client, conn, `{"type":"ping"}`)

	assert.Equal(t, []string{"pong"}, eventTypes(drain(t, conn)))
}

func TestSnapshotCommand(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")
	client, conn := f.client("tok-a")
	f.command(client, conn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	drain(t, conn)

	f.command(client, conn, `{"type":"snapshot"}`)

	snap := lastState(t, drain(t, conn))
	assert.Equal(t, core.PhaseActive, snap.Phase)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	drain(t, bobConn)

	f.ctl.disconnect(bob)

	snap := lastState(t, drain(t, aliceConn))
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, 1, f.ctl.Hub.Occupancy(m.ID))
	assert.Equal(t, 1, f.dir.Occupancy(m.ID))
}

func TestRoomStaysJoinableAfterHostLeaves(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	drain(t, bobConn)

	// the founding host walks out; Bob inherits the role
	f.command(alice, aliceConn, `{"type":"leave"}`)
	snap := lastState(t, drain(t, bobConn))
	require.NotNil(t, snap.Self())
	assert.Equal(t, domain.RoleHost, snap.Self().Role)

	// a later joiner must still get a roster it can activate
	carol, carolConn := f.client("tok-c")
	f.command(carol, carolConn, `{"type":"join","roomId":%q,"displayName":"Carol"}`, m.ID)

	snap = lastState(t, drain(t, carolConn))
	assert.Equal(t, core.PhaseActive, snap.Phase)
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, domain.RoleAttendee, snap.Participants[0].Role)
	assert.Equal(t, "Bob", snap.Participants[1].DisplayName)
	assert.Equal(t, domain.RoleHost, snap.Participants[1].Role)
}

func TestTransferredHostSurvivesInDirectory(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")

	alice, aliceConn := f.client("tok-a")
	f.command(alice, aliceConn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	bob, bobConn := f.client("tok-b")
	f.command(bob, bobConn, `{"type":"join","roomId":%q,"displayName":"Bob"}`, m.ID)
	drain(t, aliceConn)
	bobID := lastState(t, drain(t, bobConn)).SelfID

	f.command(alice, aliceConn, `{"type":"transfer_host","targetId":%q}`, bobID)

	carol, carolConn := f.client("tok-c")
	f.command(carol, carolConn, `{"type":"join","roomId":%q,"displayName":"Carol"}`, m.ID)

	snap := lastState(t, drain(t, carolConn))
	assert.Equal(t, core.PhaseActive, snap.Phase)
	host, ok := snap.Participant(bobID)
	require.True(t, ok)
	assert.Equal(t, domain.RoleHost, host.Role)
}

func TestCancelJoinHandleIsSpentAfterResolve(t *testing.T) {
	f := newFixture()
	m := f.dir.CreateInstant("Standup")
	client, conn := f.client("tok-a")
	f.command(client, conn, `{"type":"join","roomId":%q,"displayName":"Alice"}`, m.ID)
	drain(t, conn)

	// nothing in flight anymore, so there is nothing to cancel
	assert.False(t, f.ctl.Registry.Cancel("tok-a"))

	f.command(client, conn, `{"type":"snapshot"}`)
	snap := lastState(t, drain(t, conn))
	assert.Equal(t, core.PhaseActive, snap.Phase)
}

func TestTrySendBackpressure(t *testing.T) {
	c := newWsSessionConn(nil)
	for i := 0; i < cap(c.send); i++ {
		require.NoError(t, c.TrySend([]byte("x")))
	}
	assert.Equal(t, ErrBackpressure, c.TrySend([]byte("overflow")))

	c.Close()
	assert.Error(t, c.TrySend([]byte("closed")))
	c.Close() // double close is safe
}

func TestErrorCodes(t *testing.T) {
	cases := map[string]struct {
		err  error
		code string
	}{
		"room unavailable": {domain.ErrRoomUnavailable, "room_unavailable"},
		"not in room":      {domain.ErrNotInRoom, "not_in_room"},
		"forbidden":        {domain.ErrForbidden, "forbidden"},
		"not found":        {domain.ErrNotFound, "not_found"},
		"empty message":    {domain.ErrEmptyMessage, "empty_message"},
		"too long":         {domain.ErrMessageTooLong, "message_too_long"},
		"invariant":        {domain.ErrInvariantViolation, "invariant_violation"},
		"already joined":   {domain.ErrAlreadyInitialized, "already_initialized"},
		"fallback":         {context.DeadlineExceeded, "internal"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.code, errorCode(tc.err))
		})
	}
}
