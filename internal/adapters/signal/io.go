package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
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

func (ctl *Controller) readPump(ctx context.Context, cid core.ConnID, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		c.Close()
		ctl.onDisconnect(cid)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(ctx, cid, c, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, cid core.ConnID, c *wsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "room:join":
		ctl.handleJoin(ctx, cid, c, data)
	case "room:leave":
		ctl.handleLeave(cid, c)
	case "user:mute":
		ctl.handleMute(cid, c, data)
	case "signal:offer", "signal:answer", "signal:candidate":
		ctl.handleSignalRelay(cid, c, data)
	case "transcript:manual":
		ctl.handleTranscript(ctx, cid, c, data)
	case "notes:request":
		ctl.handleNotesRequest(ctx, cid)
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

// onDisconnect runs after the read pump exits for any reason. Room
// membership goes away like a leave; the room registry's grace window
// keeps the room itself alive for a reconnect.
func (ctl *Controller) onDisconnect(cid core.ConnID) {
	sess, _ := ctl.Orch.Registry.GetSession(cid)
	_, room, ok := ctl.Orch.Disconnect(cid)
	if !ok || sess == nil {
		return
	}
	ctl.broadcast(room, cid, userEvent{
		Type:   "user:left",
		ConnID: cid,
		User:   *sess.Meta().User,
	})
}
