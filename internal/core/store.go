package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Gather/internal/domain"
	"github.com/rs/zerolog/log"
)

// Store owns one RoomSession and applies atomic mutations to it.
// Mutations are validated against the session invariants after applying
// to a working copy; only a clean copy is swapped in, so subscribers
// never observe a partial update.
//
// Commits are expected to be serialized by the command processor
// (single-writer discipline); the internal mutex only protects readers.
type Store struct {
	clock func() time.Time

	mu      sync.RWMutex
	session *RoomSession

	subMu   sync.Mutex
	subs    map[int]func(RoomSession)
	nextSub int
}

type StoreOption func(*Store)

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.clock = clock
	}
}

func NewStore(options ...StoreOption) *Store {
	s := &Store{
		clock: time.Now,
		subs:  make(map[int]func(RoomSession)),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Initialize seeds a fresh session in the joining phase with self as the
// only roster entry. A second call without a Teardown fails.
func (s *Store) Initialize(roomID domain.RoomID, self *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return domain.ErrAlreadyInitialized
	}
	s.session = newRoomSession(roomID, self.Clone())
	log.Debug().Str("module", "core.store").Str("room", string(roomID)).Str("self", string(self.ID)).Msg("session initialized")
	return nil
}

// Commit applies one mutation all-or-nothing and notifies subscribers
// exactly once with the snapshot after the commit. A mutation that would
// violate a session invariant is rejected with ErrInvariantViolation and
// the store is left unchanged.
func (s *Store) Commit(m Mutation) error {
	s.mu.Lock()
	if s.session == nil || s.session.Phase == PhaseLeft {
		// left is terminal: an abandoned session must not keep accruing
		// state off relayed mutations.
		s.mu.Unlock()
		return domain.ErrNotInRoom
	}
	next := s.session.clone()
	if err := m.apply(next, s.clock()); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrInvariantViolation, err)
	}
	if err := validate(next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrInvariantViolation, err)
	}
	s.session = next
	snap := next.clone()
	s.mu.Unlock()

	s.notify(*snap)
	return nil
}

// Snapshot returns a deep copy of the current session. Callers must not
// treat it as live state.
func (s *Store) Snapshot() (RoomSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return RoomSession{}, domain.ErrNotInRoom
	}
	return *s.session.clone(), nil
}

// Subscribe registers a listener invoked synchronously after every
// committed mutation, in commit order. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(RoomSession)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// ForceLeft pushes the session straight to the terminal phase, bypassing
// the legal transition path. Used when internal state can no longer be
// trusted and the session must be abandoned.
func (s *Store) ForceLeft() {
	s.mu.Lock()
	if s.session == nil || s.session.Phase == PhaseLeft {
		s.mu.Unlock()
		return
	}
	next := s.session.clone()
	next.Phase = PhaseLeft
	s.session = next
	snap := next.clone()
	s.mu.Unlock()

	log.Warn().Str("module", "core.store").Str("room", string(snap.RoomID)).Msg("session forced to left")
	s.notify(*snap)
}

// Teardown discards the session so the store could be re-initialized.
// Controllers allocate a fresh store per join instead of reusing one.
func (s *Store) Teardown() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

func (s *Store) notify(snap RoomSession) {
	s.subMu.Lock()
	fns := make([]func(RoomSession), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// validate checks the cross-field invariants that must hold after every
// commit, whatever the mutation was.
func validate(s *RoomSession) error {
	switch s.Phase {
	case PhaseJoining, PhaseActive:
		if _, ok := s.Participant(s.SelfID); !ok {
			return errSelfAbsent
		}
	}
	if s.Phase == PhaseActive && s.RosterSize() > 0 && s.hostCount() == 0 {
		return errNoHost
	}
	return nil
}
