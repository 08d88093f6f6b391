// Package signal binds the presentation layer to session controllers
// over a websocket. Each connection serves one client token; commands
// arrive as JSON envelopes and every committed session change is pushed
// back as a state event.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app"
	"github.com/dkeye/Gather/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Presence is the directory-side bookkeeping the adapter feeds after
// joins, leaves, host transfers and device toggles so later resolvers
// see the current roster, not the one from join time.
type Presence interface {
	NoteJoined(domain.RoomID, *domain.Participant)
	NoteLeft(domain.RoomID, domain.ParticipantID)
	NoteRole(domain.RoomID, domain.ParticipantID, domain.Role)
	NoteDevice(domain.RoomID, domain.ParticipantID, domain.Device, bool)
}

type SessionWSController struct {
	Registry *app.Registry
	Hub      *app.Hub
	Presence Presence

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSessionWSController(registry *app.Registry, hub *app.Hub, presence Presence, readLimit int64, pingPeriod time.Duration) *SessionWSController {
	return &SessionWSController{
		Registry:   registry,
		Hub:        hub,
		Presence:   presence,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

// WsSessionConn wraps one websocket with a buffered outbound queue.
// A full queue fails TrySend instead of blocking the committer.
type WsSessionConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWsSessionConn(conn *websocket.Conn) *WsSessionConn {
	return &WsSessionConn{
		conn: conn,
		send: make(chan []byte, 32),
	}
}

func (c *WsSessionConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSessionConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSession upgrades the request and runs the read/write pumps for
// the client identified by its token cookie.
func (ctl *SessionWSController) HandleSession(ctx context.Context, c *gin.Context) {
	token := app.ClientToken(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("client", string(token)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := newWsSessionConn(ws)
	client := &clientState{
		token: token,
		ctrl:  ctl.Registry.GetOrCreate(token),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, client, conn)
}

// clientState is the per-connection view of one client's session.
type clientState struct {
	token app.ClientToken
	ctrl  *app.SessionController

	mu          sync.Mutex
	roomID      domain.RoomID
	selfID      domain.ParticipantID
	unsubscribe func()
}

func (s *clientState) room() (domain.RoomID, domain.ParticipantID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.selfID, s.roomID != ""
}

func (s *clientState) enter(roomID domain.RoomID, selfID domain.ParticipantID, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
	s.selfID = selfID
	s.unsubscribe = unsubscribe
}

func (s *clientState) exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.roomID = ""
	s.selfID = ""
}
