package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeTimeout = 5 * time.Second

func (ctl *SessionWSController) writePump(ctx context.Context, c *WsSessionConn) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SessionWSController) readPump(ctx context.Context, cancel context.CancelFunc, client *clientState, c *WsSessionConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", string(client.token)).Msg("readPump closing")
		ctl.disconnect(client)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("client", string(client.token)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("client", string(client.token)).Msg("readPump read error")
				return
			}
			ctl.handleCommand(ctx, client, c, data)
		}
	}
}

func (ctl *SessionWSController) handleCommand(ctx context.Context, client *clientState, c *WsSessionConn, data []byte) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, client, c, env)
	case "cancel_join":
		ctl.Registry.Cancel(client.token)
	case "leave":
		ctl.handleLeave(client, c)
	case "toggle_video", "toggle_audio", "toggle_screen":
		ctl.handleToggle(client, c, env.Type)
	case "chat":
		ctl.handleChat(client, c, env)
	case "remove":
		ctl.handleRemove(client, c, env)
	case "transfer_host":
		ctl.handleTransferHost(client, c, env)
	case "snapshot":
		ctl.handleSnapshot(client, c)
	case "ping":
		ctl.sendJSON(c, pongEvent{Type: "pong"})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown command")
	}
}

func (ctl *SessionWSController) sendJSON(c *WsSessionConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SessionWSController) sendError(c *WsSessionConn, err error) {
	ctl.sendJSON(c, newErrorEvent(err))
}
