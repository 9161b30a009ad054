package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// JoinOutcome augments the registry result with what the adapter needs
// to broadcast.
type JoinOutcome struct {
	app.JoinResult
	// CallStarted is set when this join flipped the room to active.
	CallStarted bool
}

// Join moves the connection into the room, replacing any stale
// membership of the same user (reconnect) and any prior room of this
// connection.
func (o *Orchestrator) Join(ctx context.Context, cid core.ConnID, code domain.RoomCode, user *domain.User) (JoinOutcome, error) {
	sess, ok := o.Registry.GetSession(cid)
	if !ok {
		return JoinOutcome{}, domain.ErrNotFound
	}

	if prev, _, ok := o.Registry.RoomOf(cid); ok && prev != code {
		o.leaveRoom(prev, cid)
	}

	res, err := o.Rooms.Join(ctx, code, user, cid, sess)
	if err != nil {
		return JoinOutcome{}, err
	}
	o.Registry.UpdateRoom(cid, code)

	if res.Replaced {
		// The user's previous connection is dead weight now; cancel its
		// pumps so it cannot receive or send anything further.
		o.Registry.ClearRoom(res.StaleConn)
		o.Registry.Cancel(res.StaleConn)
		log.Info().Str("module", "orch").
			Str("stale_conn", string(res.StaleConn)).
			Str("user", string(user.ID)).
			Msg("replaced stale connection on rejoin")
	}

	out := JoinOutcome{JoinResult: res}
	if res.Room.MemberCount() >= 2 {
		out.CallStarted = o.Rooms.MarkActive(code)
	}
	return out, nil
}

// Leave detaches the connection from its room, if any. Returns the room
// it left so the adapter can broadcast user:left.
func (o *Orchestrator) Leave(cid core.ConnID) (domain.RoomCode, core.RoomService, bool) {
	code, _, ok := o.Registry.RoomOf(cid)
	if !ok {
		return "", nil, false
	}
	room, _ := o.Rooms.Get(code)
	o.leaveRoom(code, cid)
	return code, room, room != nil
}

// Disconnect handles a dropped transport. Membership is removed like a
// leave; the grace window in the room registry keeps the room alive for
// a reconnect.
func (o *Orchestrator) Disconnect(cid core.ConnID) (domain.RoomCode, core.RoomService, bool) {
	code, room, ok := o.Leave(cid)
	o.Registry.Unbind(cid)
	return code, room, ok
}

// Close ends the call on behalf of requester. Host-only; returns the
// computed duration in seconds. The transcript log is flushed and the
// members' room bindings cleared; the adapter broadcasts call:ended.
func (o *Orchestrator) Close(ctx context.Context, code domain.RoomCode, requester domain.UserID) (int, core.RoomService, error) {
	room, ok := o.Rooms.Get(code)
	if !ok {
		return 0, nil, domain.ErrNotFound
	}
	sessionID := room.Snapshot().SessionID

	duration, err := o.Rooms.Close(ctx, code, requester)
	if err != nil {
		return 0, nil, err
	}

	o.Transcripts.Close(ctx, sessionID)
	for _, m := range room.MembersSnapshot() {
		o.Registry.ClearRoom(m.ConnID)
	}
	return duration, room, nil
}

// SetMute mirrors the client's mute state into the participant snapshot
// so late joiners render it correctly. The mute-aware capture decision
// itself is client-side.
func (o *Orchestrator) SetMute(cid core.ConnID, muted bool) (core.RoomService, bool) {
	code, sess, ok := o.Registry.RoomOf(cid)
	if !ok {
		return nil, false
	}
	sess.Meta().Muted = muted
	room, ok := o.Rooms.Get(code)
	return room, ok
}

func (o *Orchestrator) leaveRoom(code domain.RoomCode, cid core.ConnID) {
	o.Rooms.Leave(code, cid)
	o.Registry.ClearRoom(cid)
}
