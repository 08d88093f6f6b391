package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Processor translates commands into store mutations. It is the only
// component allowed to construct mutations, and it serializes all of
// them through one mutex so no two apply concurrently against the same
// session (single-writer discipline). That covers remote mutations too:
// externally-sourced roster changes enter through ApplyRemote.
type Processor struct {
	mu        sync.Mutex
	store     *core.Store
	directory Directory
}

func NewProcessor(store *core.Store, directory Directory) *Processor {
	return &Processor{
		store:     store,
		directory: directory,
	}
}

// Join resolves the room through the directory, seeds the roster and
// activates the session. It is the only suspension point in the command
// set; ctx cancellation during the directory call aborts the join. A
// cancellation that lands after the directory resolved does not abort:
// the session is joined and then immediately left.
func (p *Processor) Join(ctx context.Context, roomID domain.RoomID, displayName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.directory.ResolveRoom(ctx, roomID)
	if err != nil {
		return err
	}

	self, err := domain.NewParticipant(displayName, res.SelfRole)
	if err != nil {
		return err
	}
	if err := p.store.Initialize(roomID, self); err != nil {
		return err
	}
	// Roster order as observed by this client: self first, then the
	// members the directory already knew about, in their join order.
	for _, remote := range res.Roster {
		if err := p.store.Commit(core.ParticipantJoined{Participant: remote}); err != nil {
			return err
		}
	}
	if err := p.store.Commit(core.PhaseChanged{To: core.PhaseActive}); err != nil {
		return err
	}
	log.Info().Str("module", "app.processor").Str("room", string(roomID)).Str("self", string(self.ID)).Msg("joined room")

	if ctx.Err() != nil {
		// Too late to abort: leave the room we just entered.
		if err := p.leaveLocked(); err != nil {
			return err
		}
		return ctx.Err()
	}
	return nil
}

// Apply validates one command against the current phase and commits the
// resulting mutations. Commands are applied strictly in submission
// order; rapid repeats are not coalesced.
func (p *Processor) Apply(cmd Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := p.store.Snapshot()
	if err != nil {
		return err
	}

	if _, ok := cmd.(LeaveRoom); ok {
		if snap.Phase == core.PhaseLeft {
			return nil // idempotent
		}
		if snap.Phase != core.PhaseActive {
			return domain.ErrNotInRoom
		}
		return p.leaveLocked()
	}

	if snap.Phase != core.PhaseActive {
		return domain.ErrNotInRoom
	}
	self := snap.Self()
	if self == nil {
		return domain.ErrNotInRoom
	}

	switch c := cmd.(type) {
	case ToggleVideo:
		return p.toggle(self, domain.DeviceVideo)
	case ToggleAudio:
		return p.toggle(self, domain.DeviceAudio)
	case ToggleScreenShare:
		return p.toggle(self, domain.DeviceScreen)
	case SendMessage:
		body := strings.TrimSpace(c.Body)
		if body == "" {
			return domain.ErrEmptyMessage
		}
		if len(body) > domain.MaxMessageLen {
			return domain.ErrMessageTooLong
		}
		return p.store.Commit(core.MessageAppended{SenderID: self.ID, Body: body})
	case RemoveParticipant:
		if self.Role != domain.RoleHost || c.TargetID == self.ID {
			return domain.ErrForbidden
		}
		if _, ok := snap.Participant(c.TargetID); !ok {
			return domain.ErrNotFound
		}
		return p.store.Commit(core.ParticipantLeft{ParticipantID: c.TargetID})
	case TransferHost:
		if self.Role != domain.RoleHost || c.TargetID == self.ID {
			return domain.ErrForbidden
		}
		if _, ok := snap.Participant(c.TargetID); !ok {
			return domain.ErrNotFound
		}
		return p.store.Commit(core.HostTransferred{FromID: self.ID, ToID: c.TargetID})
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

// ApplyRemote commits an externally-sourced mutation (another client's
// join, leave or device change) under the same writer lock as commands.
// Relay delivery is at-least-once: a join of someone already in the
// roster or a leave of someone already gone is old news, not corruption,
// so those commits are dropped instead of failing the session.
func (p *Processor) ApplyRemote(m core.Mutation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.store.Commit(m)
	if errors.Is(err, core.ErrDuplicateParticipant) || errors.Is(err, core.ErrParticipantAbsent) {
		log.Debug().Err(err).Str("module", "app.processor").Msg("stale remote mutation dropped")
		return nil
	}
	return err
}

func (p *Processor) toggle(self *domain.Participant, d domain.Device) error {
	enabled, err := self.DeviceEnabled(d)
	if err != nil {
		return err
	}
	return p.store.Commit(core.ParticipantDeviceChanged{
		ParticipantID: self.ID,
		Device:        d,
		Enabled:       !enabled,
	})
}

// leaveLocked walks the session down the legal path active -> leaving ->
// left, removing self from the roster on the way.
func (p *Processor) leaveLocked() error {
	if err := p.store.Commit(core.PhaseChanged{To: core.PhaseLeaving}); err != nil {
		return err
	}
	snap, err := p.store.Snapshot()
	if err != nil {
		return err
	}
	if _, ok := snap.Participant(snap.SelfID); ok {
		if err := p.store.Commit(core.ParticipantLeft{ParticipantID: snap.SelfID}); err != nil {
			return err
		}
	}
	if err := p.store.Commit(core.PhaseChanged{To: core.PhaseLeft}); err != nil {
		return err
	}
	log.Info().Str("module", "app.processor").Str("room", string(snap.RoomID)).Msg("left room")
	return nil
}
