package app

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// SessionController is the only component the presentation layer talks
// to. It owns one RoomSession end-to-end: a fresh store and processor
// per join, discarded on leave. Listeners registered with OnChange
// survive rejoins; the controller re-subscribes them to each new store.
type SessionController struct {
	directory Directory
	storeOpts []core.StoreOption

	mu    sync.Mutex
	store *core.Store
	proc  *Processor

	subMu   sync.Mutex
	subs    map[int]func(core.RoomSession)
	nextSub int
}

func NewSessionController(directory Directory, storeOpts ...core.StoreOption) *SessionController {
	return &SessionController{
		directory: directory,
		storeOpts: storeOpts,
		subs:      make(map[int]func(core.RoomSession)),
	}
}

// Join allocates a fresh session and blocks until the phase reaches
// active or the join fails. Rejoining after a leave starts over with an
// empty message log.
func (c *SessionController) Join(ctx context.Context, roomID domain.RoomID, displayName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc != nil {
		if snap, err := c.store.Snapshot(); err == nil && snap.Phase != core.PhaseLeft {
			return domain.ErrAlreadyInitialized
		}
	}

	store := core.NewStore(c.storeOpts...)
	proc := NewProcessor(store, c.directory)
	unsubscribe := store.Subscribe(c.fanout)

	if err := proc.Join(ctx, roomID, displayName); err != nil {
		unsubscribe()
		log.Warn().Err(err).Str("module", "app.controller").Str("room", string(roomID)).Msg("join failed")
		return err
	}

	c.store = store
	c.proc = proc
	return nil
}

// Dispatch forwards one command to the processor. Failures are returned
// to the caller, never thrown; an invariant violation means the session
// state can no longer be trusted, so it is forced to left and the error
// is fatal for this session.
func (c *SessionController) Dispatch(cmd Command) error {
	c.mu.Lock()
	store, proc := c.store, c.proc
	c.mu.Unlock()
	if proc == nil {
		return domain.ErrNotInRoom
	}

	err := proc.Apply(cmd)
	if errors.Is(err, domain.ErrInvariantViolation) {
		log.Error().Err(err).Str("module", "app.controller").Msg("invariant violation, abandoning session")
		store.ForceLeft()
	}
	return err
}

// ApplyRemote feeds an externally-sourced mutation into the session.
func (c *SessionController) ApplyRemote(m core.Mutation) error {
	c.mu.Lock()
	store, proc := c.store, c.proc
	c.mu.Unlock()
	if proc == nil {
		return domain.ErrNotInRoom
	}

	err := proc.ApplyRemote(m)
	if errors.Is(err, domain.ErrInvariantViolation) {
		log.Error().Err(err).Str("module", "app.controller").Msg("invariant violation, abandoning session")
		store.ForceLeft()
	}
	return err
}

// Leave walks the session to the terminal phase and tears it down.
// Idempotent: leaving with no session is a successful no-op.
func (c *SessionController) Leave() error {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		return nil
	}

	if err := proc.Apply(LeaveRoom{}); err != nil && !errors.Is(err, domain.ErrNotInRoom) {
		return err
	}

	c.mu.Lock()
	if c.store != nil {
		c.store.Teardown()
	}
	c.proc = nil
	c.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current session for UI reads.
func (c *SessionController) Snapshot() (core.RoomSession, error) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return core.RoomSession{}, domain.ErrNotInRoom
	}
	return store.Snapshot()
}

// OnChange registers a listener for committed snapshots. The returned
// func unsubscribes.
func (c *SessionController) OnChange(fn func(core.RoomSession)) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *SessionController) fanout(snap core.RoomSession) {
	c.subMu.Lock()
	fns := make([]func(core.RoomSession), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
