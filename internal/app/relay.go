package app

import (
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// Relay forwards signaling frames between two members of the same room.
// It never inspects the negotiation payload and never retries; a target
// that just disconnected simply misses the frame, and the client-side
// protocol re-offers after reconnect.
type Relay struct {
	Rooms *RoomRegistry
}

func NewRelay(rooms *RoomRegistry) *Relay {
	return &Relay{Rooms: rooms}
}

// Forward delivers data to the target connection if and only if both
// sender and target are current members of the room. Anything else is a
// silent drop, reported only via the return value.
func (r *Relay) Forward(code domain.RoomCode, from, to core.ConnID, data core.Frame) bool {
	room, ok := r.Rooms.Get(code)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("room", string(code)).Msg("drop: no such room")
		return false
	}
	if _, ok := room.Member(from); !ok {
		log.Debug().Str("module", "app.relay").Str("from", string(from)).Msg("drop: sender not in room")
		return false
	}
	if _, ok := room.Member(to); !ok {
		log.Debug().Str("module", "app.relay").Str("to", string(to)).Msg("drop: target not in room")
		return false
	}
	if err := room.SendTo(to, data); err != nil {
		log.Debug().Err(err).Str("module", "app.relay").Str("to", string(to)).Msg("drop: send failed")
		return false
	}
	return true
}
