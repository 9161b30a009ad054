package app

import "github.com/calldeck/calldeck/internal/core"

// BackpressureAction decides what happens to a member whose signaling
// send buffer is full during a room broadcast.
type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

type Policy interface {
	OnBackpressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// DropPolicy sheds the frame and keeps the member; lifecycle state is
// re-synced from the membership snapshot on the next room:joined, so a
// lost broadcast is recoverable.
type DropPolicy struct{}

func (DropPolicy) OnBackpressure(core.RoomService, core.MemberSession) BackpressureAction {
	return DropFrame
}

// StrictPolicy kicks members that cannot keep up with signaling fanout.
type StrictPolicy struct{}

func (StrictPolicy) OnBackpressure(core.RoomService, core.MemberSession) BackpressureAction {
	return KickMember
}
