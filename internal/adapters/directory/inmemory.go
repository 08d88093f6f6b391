// Package directory is the in-memory meeting directory: it owns meeting
// meta-data (instant and scheduled), decides join eligibility, and
// tracks who is currently present in each room so later joiners receive
// the existing roster.
package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app"
	"github.com/dkeye/Gather/internal/domain"
)

// DefaultJoinWindow is how early a scheduled meeting becomes joinable.
const DefaultJoinWindow = 10 * time.Minute

type InMemory struct {
	clock      func() time.Time
	joinWindow time.Duration

	mu       sync.RWMutex
	meetings map[domain.RoomID]*domain.Meeting
	present  map[domain.RoomID][]*domain.Participant
}

type Option func(*InMemory)

func WithClock(clock func() time.Time) Option {
	return func(d *InMemory) {
		d.clock = clock
	}
}

func WithJoinWindow(w time.Duration) Option {
	return func(d *InMemory) {
		d.joinWindow = w
	}
}

func NewInMemory(options ...Option) *InMemory {
	d := &InMemory{
		clock:      time.Now,
		joinWindow: DefaultJoinWindow,
		meetings:   make(map[domain.RoomID]*domain.Meeting),
		present:    make(map[domain.RoomID][]*domain.Participant),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// CreateInstant registers a meeting that is joinable immediately. The
// returned id doubles as the shareable meeting code.
func (d *InMemory) CreateInstant(title string) *domain.Meeting {
	m := domain.NewInstantMeeting(title, d.clock())
	d.mu.Lock()
	d.meetings[m.ID] = m
	d.mu.Unlock()
	log.Info().Str("module", "directory").Str("room", string(m.ID)).Msg("instant meeting created")
	return m
}

func (d *InMemory) Schedule(title string, startsAt time.Time, duration time.Duration, invited []string) (*domain.Meeting, error) {
	m, err := domain.NewScheduledMeeting(title, startsAt, duration, invited, d.clock())
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.meetings[m.ID] = m
	d.mu.Unlock()
	log.Info().Str("module", "directory").Str("room", string(m.ID)).Time("starts_at", startsAt).Msg("meeting scheduled")
	return m, nil
}

// List returns meetings that have not ended yet, soonest first.
func (d *InMemory) List() []*domain.Meeting {
	now := d.clock()
	d.mu.RLock()
	out := make([]*domain.Meeting, 0, len(d.meetings))
	for _, m := range d.meetings {
		if d.ended(m, now) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out
}

func (d *InMemory) Cancel(id domain.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.meetings[id]; !ok {
		return domain.ErrNotFound
	}
	delete(d.meetings, id)
	delete(d.present, id)
	log.Info().Str("module", "directory").Str("room", string(id)).Msg("meeting cancelled")
	return nil
}

// ResolveRoom implements app.Directory. The first resolver of a meeting
// becomes its host; later resolvers join as attendees and receive the
// current roster in join order.
func (d *InMemory) ResolveRoom(ctx context.Context, roomID domain.RoomID) (*app.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := d.clock()
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.meetings[roomID]
	if !ok {
		return nil, domain.ErrRoomUnavailable
	}
	if !d.joinable(m, now) {
		return nil, domain.ErrRoomUnavailable
	}

	// Peers promote the earliest-joined participant when the host
	// departs; presence only hears about joins and leaves, so the same
	// rule is re-applied here before the roster goes out. Otherwise a
	// room whose host left would hand every new joiner a hostless
	// roster it cannot activate.
	present := d.present[roomID]
	if len(present) > 0 && hostCount(present) == 0 {
		domain.EarliestJoined(present).Role = domain.RoleHost
	}

	roster := make([]*domain.Participant, 0, len(present))
	for _, p := range present {
		roster = append(roster, p.Clone())
	}
	role := domain.RoleAttendee
	if len(roster) == 0 {
		role = domain.RoleHost
	}
	return &app.Resolution{Roster: roster, SelfRole: role}, nil
}

// NoteJoined records presence after a successful join.
func (d *InMemory) NoteJoined(roomID domain.RoomID, p *domain.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.present[roomID] = append(d.present[roomID], p.Clone())
}

func (d *InMemory) NoteLeft(roomID domain.RoomID, id domain.ParticipantID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	roster := d.present[roomID]
	for i, p := range roster {
		if p.ID == id {
			d.present[roomID] = append(roster[:i], roster[i+1:]...)
			break
		}
	}
	if len(d.present[roomID]) == 0 {
		delete(d.present, roomID)
	}
}

// NoteRole updates a present participant's recorded role so later
// resolvers see host transfers, not the roles from join time.
func (d *InMemory) NoteRole(roomID domain.RoomID, id domain.ParticipantID, role domain.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.present[roomID] {
		if p.ID == id {
			p.Role = role
			return
		}
	}
}

// NoteDevice keeps the recorded device toggles current for the same
// reason.
func (d *InMemory) NoteDevice(roomID domain.RoomID, id domain.ParticipantID, device domain.Device, enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.present[roomID] {
		if p.ID == id {
			_ = p.SetDevice(device, enabled)
			return
		}
	}
}

func (d *InMemory) Occupancy(roomID domain.RoomID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.present[roomID])
}

func hostCount(ps []*domain.Participant) int {
	n := 0
	for _, p := range ps {
		if p.Role == domain.RoleHost {
			n++
		}
	}
	return n
}

// joinable: instant meetings stay open until cancelled; scheduled ones
// open joinWindow before start and close when they end.
func (d *InMemory) joinable(m *domain.Meeting, now time.Time) bool {
	if m.Instant {
		return true
	}
	if now.Before(m.StartsAt.Add(-d.joinWindow)) {
		return false
	}
	return !d.ended(m, now)
}

func (d *InMemory) ended(m *domain.Meeting, now time.Time) bool {
	if m.Instant || m.Duration <= 0 {
		return false
	}
	return now.After(m.StartsAt.Add(m.Duration))
}
