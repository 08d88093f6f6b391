package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Hub tracks which clients are in which room and relays one client's
// session changes to everyone else's session as remote mutations. It
// never touches transport resources; the session controllers do their
// own notification fan-out.
type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[ClientToken]*SessionController
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[domain.RoomID]map[ClientToken]*SessionController),
	}
}

func (h *Hub) Enter(roomID domain.RoomID, token ClientToken, ctrl *SessionController) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[ClientToken]*SessionController)
		h.rooms[roomID] = room
	}
	room[token] = ctrl
	log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("client", string(token)).Msg("entered room")
}

func (h *Hub) Exit(roomID domain.RoomID, token ClientToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[roomID]; ok {
		delete(room, token)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("client", string(token)).Msg("exited room")
}

// Relay applies the mutation to every other client's session in the
// room. A session that rejects it is skipped; its controller already
// handled the fallout.
func (h *Hub) Relay(roomID domain.RoomID, from ClientToken, m core.Mutation) {
	h.mu.RLock()
	peers := make([]*SessionController, 0, len(h.rooms[roomID]))
	for token, ctrl := range h.rooms[roomID] {
		if token == from {
			continue
		}
		peers = append(peers, ctrl)
	}
	h.mu.RUnlock()

	for _, ctrl := range peers {
		if err := ctrl.ApplyRemote(m); err != nil {
			log.Warn().Err(err).Str("module", "app.hub").Str("room", string(roomID)).Msg("relay rejected")
		}
	}
}

func (h *Hub) Occupancy(roomID domain.RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
