package directory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Gather/internal/adapters/directory"
	"github.com/dkeye/Gather/internal/domain"
)

func TestInMemory_ResolveUnknownRoom(t *testing.T) {
	dir := directory.NewInMemory()

	_, err := dir.ResolveRoom(context.Background(), "no-such-room")
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
}

func TestInMemory_FirstResolverBecomesHost(t *testing.T) {
	dir := directory.NewInMemory()
	m := dir.CreateInstant("Standup")

	res, err := dir.ResolveRoom(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, res.SelfRole)
	assert.Empty(t, res.Roster)
}

func TestInMemory_SecondResolverSeesRoster(t *testing.T) {
	dir := directory.NewInMemory()
	m := dir.CreateInstant("Standup")

	alice, err := domain.NewParticipant("Alice", domain.RoleHost)
	require.NoError(t, err)
	dir.NoteJoined(m.ID, alice)

	res, err := dir.ResolveRoom(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAttendee, res.SelfRole)
	require.Len(t, res.Roster, 1)
	assert.Equal(t, alice.ID, res.Roster[0].ID)
}

func TestInMemory_NoteLeftClearsPresence(t *testing.T) {
	dir := directory.NewInMemory()
	m := dir.CreateInstant("Standup")

	alice, err := domain.NewParticipant("Alice", domain.RoleHost)
	require.NoError(t, err)
	dir.NoteJoined(m.ID, alice)
	require.Equal(t, 1, dir.Occupancy(m.ID))

	dir.NoteLeft(m.ID, alice.ID)
	assert.Equal(t, 0, dir.Occupancy(m.ID))

	// room is empty again, next resolver is host
	res, err := dir.ResolveRoom(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, res.SelfRole)
}

func TestInMemory_ResolvePromotesWhenHostIsGone(t *testing.T) {
	dir := directory.NewInMemory()
	m := dir.CreateInstant("Standup")

	alice, err := domain.NewParticipant("Alice", domain.RoleHost)
	require.NoError(t, err)
	bob, err := domain.NewParticipant("Bob", domain.RoleAttendee)
	require.NoError(t, err)
	carol, err := domain.NewParticipant("Carol", domain.RoleAttendee)
	require.NoError(t, err)
	bob.JoinedAt = alice.JoinedAt.Add(time.Second)
	carol.JoinedAt = alice.JoinedAt.Add(2 * time.Second)
	dir.NoteJoined(m.ID, alice)
	dir.NoteJoined(m.ID, bob)
	dir.NoteJoined(m.ID, carol)

	// the recorded host departs; the roster handed to the next joiner
	// must name the participant peers promoted, not stay hostless
	dir.NoteLeft(m.ID, alice.ID)

	res, err := dir.ResolveRoom(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAttendee, res.SelfRole)
	require.Len(t, res.Roster, 2)
	assert.Equal(t, bob.ID, res.Roster[0].ID)
	assert.Equal(t, domain.RoleHost, res.Roster[0].Role)
	assert.Equal(t, domain.RoleAttendee, res.Roster[1].Role)
}

func TestInMemory_NoteRoleAndDevice(t *testing.T) {
	dir := directory.NewInMemory()
	m := dir.CreateInstant("Standup")

	alice, err := domain.NewParticipant("Alice", domain.RoleHost)
	require.NoError(t, err)
	bob, err := domain.NewParticipant("Bob", domain.RoleAttendee)
	require.NoError(t, err)
	dir.NoteJoined(m.ID, alice)
	dir.NoteJoined(m.ID, bob)

	dir.NoteRole(m.ID, alice.ID, domain.RoleAttendee)
	dir.NoteRole(m.ID, bob.ID, domain.RoleHost)
	dir.NoteDevice(m.ID, alice.ID, domain.DeviceVideo, false)

	res, err := dir.ResolveRoom(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, res.Roster, 2)
	assert.Equal(t, domain.RoleAttendee, res.Roster[0].Role)
	assert.False(t, res.Roster[0].VideoEnabled)
	assert.Equal(t, domain.RoleHost, res.Roster[1].Role)
}

func TestInMemory_ScheduledMeetingWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	dir := directory.NewInMemory(
		directory.WithClock(func() time.Time { return now }),
		directory.WithJoinWindow(10*time.Minute),
	)

	m, err := dir.Schedule("Design Review", now.Add(time.Hour), 45*time.Minute, nil)
	require.NoError(t, err)

	// too early
	_, err = dir.ResolveRoom(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)

	// inside the join window
	now = m.StartsAt.Add(-5 * time.Minute)
	_, err = dir.ResolveRoom(context.Background(), m.ID)
	assert.NoError(t, err)

	// expired
	now = m.StartsAt.Add(46 * time.Minute)
	_, err = dir.ResolveRoom(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
}

func TestInMemory_ScheduleValidation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	dir := directory.NewInMemory(directory.WithClock(func() time.Time { return now }))

	_, err := dir.Schedule("", now.Add(time.Hour), 0, nil)
	assert.ErrorIs(t, err, domain.ErrTitleEmpty)

	_, err = dir.Schedule("Retro", now.Add(-time.Hour), 0, nil)
	assert.ErrorIs(t, err, domain.ErrStartInPast)
}

func TestInMemory_ListSortedAndPrunesEnded(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	dir := directory.NewInMemory(directory.WithClock(func() time.Time { return now }))

	later, err := dir.Schedule("Client Presentation", now.Add(3*time.Hour), time.Hour, nil)
	require.NoError(t, err)
	sooner, err := dir.Schedule("Team Standup", now.Add(time.Hour), 30*time.Minute, nil)
	require.NoError(t, err)
	ended, err := dir.Schedule("Old", now.Add(time.Minute), time.Minute, nil)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute) // "Old" is over

	got := dir.List()
	require.Len(t, got, 2)
	assert.Equal(t, sooner.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)
	for _, m := range got {
		assert.NotEqual(t, ended.ID, m.ID)
	}
}

func TestInMemory_Cancel(t *testing.T) {
	dir := directory.NewInMemory()
	m := dir.CreateInstant("Standup")

	require.NoError(t, dir.Cancel(m.ID))
	assert.ErrorIs(t, dir.Cancel(m.ID), domain.ErrNotFound)

	_, err := dir.ResolveRoom(context.Background(), m.ID)
	assert.ErrorIs(t, err, domain.ErrRoomUnavailable)
}

func TestInMemory_ResolveHonoursContext(t *testing.T) {
	dir := directory.NewInMemory()
	m := dir.CreateInstant("Standup")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dir.ResolveRoom(ctx, m.ID)
	assert.ErrorIs(t, err, context.Canceled)
}
