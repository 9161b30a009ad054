package orch

import (
	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/core"
)

// Orchestrator wires the connection registry, the room registry, the
// signaling relay and the transcript aggregator together. It owns the
// coordination logic; adapters own the wire format.
type Orchestrator struct {
	Registry    *app.Registry
	Rooms       *app.RoomRegistry
	Relay       *app.Relay
	Transcripts *app.Aggregator
	Notes       core.NotesDispatcher // optional
	Policy      app.Policy
}

// BroadcastFrame fans data out to every room member except from,
// applying the backpressure policy to members that could not take it.
func (o *Orchestrator) BroadcastFrame(room core.RoomService, from core.ConnID, data core.Frame) {
	res := room.Broadcast(from, data)
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackpressure(room, slow) {
		case app.KickMember:
			cid, _, ok := room.MemberByUser(slow.Meta().User.ID)
			if ok {
				o.Disconnect(cid)
				o.Registry.Cancel(cid)
			}
		case app.DropFrame, app.NoAction:
		}
	}
}

// RelaySignal forwards one offer/answer/candidate frame. The sender's
// room scopes the delivery; a missing target is a silent drop.
func (o *Orchestrator) RelaySignal(from, to core.ConnID, data core.Frame) bool {
	code, _, ok := o.Registry.RoomOf(from)
	if !ok {
		return false
	}
	return o.Relay.Forward(code, from, to, data)
}
