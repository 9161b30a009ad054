package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

type userEvent struct {
	Type   string      `json:"type"`
	ConnID core.ConnID `json:"conn_id"`
	User   domain.User `json:"user"`
	Muted  bool        `json:"muted,omitempty"`
}

func (ctl *Controller) handleJoin(ctx context.Context, cid core.ConnID, c *wsSignalConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload", "malformed room:join")
		return
	}

	sess, ok := ctl.Orch.Registry.GetSession(cid)
	if !ok {
		ctl.sendError(c, "not_bound", "connection not registered")
		return
	}
	user := sess.Meta().User

	if !ctl.Limiter.Allow(user.ID) {
		ctl.sendError(c, "rate_limited", "too many join attempts")
		return
	}

	out, err := ctl.Orch.Join(ctx, cid, domain.RoomCode(p.Room), user)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			ctl.sendError(c, "not_found", "room does not exist")
		case errors.Is(err, domain.ErrConflict):
			ctl.sendError(c, "already_ended", "session already ended")
		case errors.Is(err, domain.ErrRoomFull):
			ctl.sendError(c, "room_full", "room is full")
		default:
			log.Error().Err(err).Str("module", "signal").Str("room", p.Room).Msg("join")
			ctl.sendError(c, "join_failed", "could not join room")
		}
		return
	}

	log.Info().Str("module", "signal").
		Str("conn", string(cid)).
		Str("room", p.Room).
		Bool("is_host", out.IsHost).
		Msg("room:join")

	roomSnap := out.Room.Snapshot()
	ctl.sendJSON(c, struct {
		Type      string                `json:"type"`
		Room      string                `json:"room"`
		SessionID string                `json:"session_id"`
		IsHost    bool                  `json:"is_host"`
		Status    domain.CallStatus     `json:"status"`
		AudioOnly bool                  `json:"audio_only"`
		Members   []core.ParticipantDTO `json:"members"`
		Count     int                   `json:"count"`
	}{
		Type:      "room:joined",
		Room:      p.Room,
		SessionID: out.SessionID,
		IsHost:    out.IsHost,
		Status:    roomSnap.Status,
		AudioOnly: roomSnap.AudioOnly,
		Members:   out.Room.MembersSnapshot(),
		Count:     out.Room.MemberCount(),
	})

	ctl.broadcast(out.Room, cid, userEvent{
		Type:   "user:joined",
		ConnID: cid,
		User:   *user,
		Muted:  sess.Meta().Muted,
	})

	if out.CallStarted {
		ctl.broadcast(out.Room, "", struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		}{"call:started", out.SessionID})
	}
}

// handleLeave detaches from the current room; the connection stays up.
func (ctl *Controller) handleLeave(cid core.ConnID, c *wsSignalConn) {
	sess, _ := ctl.Orch.Registry.GetSession(cid)

	_, room, ok := ctl.Orch.Leave(cid)
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{"room:left"})
	if !ok || sess == nil {
		return
	}

	ctl.broadcast(room, cid, userEvent{
		Type:   "user:left",
		ConnID: cid,
		User:   *sess.Meta().User,
	})
}

func (ctl *Controller) handleMute(cid core.ConnID, c *wsSignalConn, data []byte) {
	var p struct {
		Type  string `json:"type"`
		Muted bool   `json:"muted"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mute payload")
		ctl.sendError(c, "bad_payload", "malformed user:mute")
		return
	}

	room, ok := ctl.Orch.SetMute(cid, p.Muted)
	if !ok {
		return
	}
	sess, _ := ctl.Orch.Registry.GetSession(cid)
	ctl.broadcast(room, cid, userEvent{
		Type:   "user:muted",
		ConnID: cid,
		User:   *sess.Meta().User,
		Muted:  p.Muted,
	})
}
