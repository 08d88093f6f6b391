package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app"
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

func (ctl *SessionWSController) handleJoin(ctx context.Context, client *clientState, c *WsSessionConn, env commandEnvelope) {
	if _, _, in := client.room(); in {
		ctl.sendError(c, domain.ErrAlreadyInitialized)
		return
	}
	roomID := domain.RoomID(env.RoomID)

	// Only the join is cancellable; the cancel handle is droppable from
	// outside (user navigates away mid-join). Once the join resolved the
	// handle is spent, so unbind it rather than let a late cancel_join
	// report success against nothing.
	joinCtx, cancel := context.WithCancel(ctx)
	ctl.Registry.BindCancel(client.token, cancel)
	err := client.ctrl.Join(joinCtx, roomID, env.DisplayName)
	cancel()
	ctl.Registry.BindCancel(client.token, nil)
	if err != nil {
		ctl.sendError(c, err)
		return
	}

	snap, err := client.ctrl.Snapshot()
	if err != nil {
		ctl.sendError(c, err)
		return
	}
	self := snap.Self()

	unsubscribe := client.ctrl.OnChange(func(snap core.RoomSession) {
		ctl.pushState(c, snap)
		// A session that reached the terminal phase is over, however it
		// got there. Dropping the room immediately keeps an abandoned
		// session out of the relay fan-out and stops a later disconnect
		// from re-announcing a departure peers already saw.
		if snap.Phase == core.PhaseLeft {
			ctl.dropRoom(client)
		}
	})
	client.enter(roomID, self.ID, unsubscribe)

	ctl.Presence.NoteJoined(roomID, self)
	ctl.Hub.Enter(roomID, client.token, client.ctrl)
	ctl.Hub.Relay(roomID, client.token, core.ParticipantJoined{Participant: self})

	ctl.sendJSON(c, newStateEvent(snap))
}

func (ctl *SessionWSController) handleLeave(client *clientState, c *WsSessionConn) {
	roomID, selfID, in := client.room()
	if !in {
		ctl.sendError(c, domain.ErrNotInRoom)
		return
	}
	if err := client.ctrl.Leave(); err != nil {
		ctl.sendError(c, err)
		return
	}
	// reaching the terminal phase already dropped the room via OnChange
	ctl.dropRoom(client)
	ctl.Hub.Relay(roomID, client.token, core.ParticipantLeft{ParticipantID: selfID})
}

func (ctl *SessionWSController) handleToggle(client *clientState, c *WsSessionConn, kind string) {
	var cmd app.Command
	var device domain.Device
	switch kind {
	case "toggle_video":
		cmd, device = app.ToggleVideo{}, domain.DeviceVideo
	case "toggle_audio":
		cmd, device = app.ToggleAudio{}, domain.DeviceAudio
	case "toggle_screen":
		cmd, device = app.ToggleScreenShare{}, domain.DeviceScreen
	}

	if err := client.ctrl.Dispatch(cmd); err != nil {
		ctl.sendError(c, err)
		return
	}

	roomID, selfID, in := client.room()
	if !in {
		return
	}
	snap, err := client.ctrl.Snapshot()
	if err != nil {
		return
	}
	self := snap.Self()
	if self == nil {
		return
	}
	enabled, err := self.DeviceEnabled(device)
	if err != nil {
		return
	}
	ctl.Presence.NoteDevice(roomID, selfID, device, enabled)
	ctl.Hub.Relay(roomID, client.token, core.ParticipantDeviceChanged{
		ParticipantID: selfID,
		Device:        device,
		Enabled:       enabled,
	})
}

func (ctl *SessionWSController) handleChat(client *clientState, c *WsSessionConn, env commandEnvelope) {
	if err := client.ctrl.Dispatch(app.SendMessage{Body: env.Body}); err != nil {
		ctl.sendError(c, err)
		return
	}

	roomID, _, in := client.room()
	if !in {
		return
	}
	snap, err := client.ctrl.Snapshot()
	if err != nil || len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	ctl.Hub.Relay(roomID, client.token, core.MessageAppended{
		SenderID: last.SenderID,
		Body:     last.Body,
	})
}

func (ctl *SessionWSController) handleRemove(client *clientState, c *WsSessionConn, env commandEnvelope) {
	targetID := domain.ParticipantID(env.TargetID)
	if err := client.ctrl.Dispatch(app.RemoveParticipant{TargetID: targetID}); err != nil {
		ctl.sendError(c, err)
		return
	}

	roomID, _, in := client.room()
	if !in {
		return
	}
	ctl.Presence.NoteLeft(roomID, targetID)
	// The removed client's own session receives this as a self-leave it
	// cannot reconcile and abandons itself, which is the point.
	ctl.Hub.Relay(roomID, client.token, core.ParticipantLeft{ParticipantID: targetID})
}

func (ctl *SessionWSController) handleTransferHost(client *clientState, c *WsSessionConn, env commandEnvelope) {
	targetID := domain.ParticipantID(env.TargetID)
	if err := client.ctrl.Dispatch(app.TransferHost{TargetID: targetID}); err != nil {
		ctl.sendError(c, err)
		return
	}

	roomID, selfID, in := client.room()
	if !in {
		return
	}
	ctl.Presence.NoteRole(roomID, selfID, domain.RoleAttendee)
	ctl.Presence.NoteRole(roomID, targetID, domain.RoleHost)
	ctl.Hub.Relay(roomID, client.token, core.HostTransferred{
		FromID: selfID,
		ToID:   targetID,
	})
}

func (ctl *SessionWSController) handleSnapshot(client *clientState, c *WsSessionConn) {
	snap, err := client.ctrl.Snapshot()
	if err != nil {
		ctl.sendError(c, err)
		return
	}
	ctl.sendJSON(c, newStateEvent(snap))
}

// pushState forwards a committed snapshot to the socket. A client too
// slow to drain its queue is disconnected rather than allowed to stall
// the committer.
func (ctl *SessionWSController) pushState(c *WsSessionConn, snap core.RoomSession) {
	b, err := marshalState(snap)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("state marshal")
		return
	}
	if err := c.TrySend(b); err == ErrBackpressure {
		log.Warn().Str("module", "signal").Msg("client too slow, closing")
		c.Close()
	}
}

// dropRoom clears every trace of the client's room membership: the
// connection-local state, the presence entry and the relay fan-out.
// Safe to call more than once.
func (ctl *SessionWSController) dropRoom(client *clientState) {
	roomID, selfID, in := client.room()
	if !in {
		return
	}
	client.exit()
	ctl.Presence.NoteLeft(roomID, selfID)
	ctl.Hub.Exit(roomID, client.token)
}

// disconnect runs when the socket goes away: an in-room client leaves
// its session so the roster does not hold ghosts.
func (ctl *SessionWSController) disconnect(client *clientState) {
	roomID, selfID, in := client.room()
	if !in {
		return
	}
	if err := client.ctrl.Leave(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("client", string(client.token)).Msg("leave on disconnect")
	}
	ctl.dropRoom(client)
	ctl.Hub.Relay(roomID, client.token, core.ParticipantLeft{ParticipantID: selfID})
}
