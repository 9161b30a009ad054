package core

import (
	"github.com/calldeck/calldeck/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

// ParticipantDTO is a read-only view for APIs (no transport fields).
type ParticipantDTO struct {
	ConnID   ConnID        `json:"conn_id"`
	UserID   domain.UserID `json:"user_id"`
	Name     string        `json:"name"`
	IsHost   bool          `json:"is_host"`
	Muted    bool          `json:"muted"`
	VideoOff bool          `json:"video_off"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
// All mutation for one room is linearized behind its lock.
type RoomService interface {
	// Snapshot returns a copy of the room record, safe to read after
	// the call returns.
	Snapshot() domain.Room
	Status() domain.CallStatus
	// Update applies fn to the room record under the write lock.
	Update(fn func(*domain.Room))
	MemberCount() int
	MembersSnapshot() []ParticipantDTO

	// AddMember registers the session under cid. If the same user already
	// holds a membership under an older ConnID (reconnect), that entry is
	// replaced and the stale ConnID returned.
	AddMember(cid ConnID, ms MemberSession) (stale ConnID, replaced bool)
	RemoveMember(cid ConnID)
	Member(cid ConnID) (MemberSession, bool)
	MemberByUser(uid domain.UserID) (ConnID, MemberSession, bool)

	Broadcast(from ConnID, data Frame) PublishResult
	SendTo(cid ConnID, data Frame) error
}
