package domain

import "time"

type RoomCode string

type CallStatus string

const (
	CallStatusWaiting CallStatus = "waiting"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

// Room is the addressable unit of a live call. The durable record it
// mirrors is Session; a Room lives only while the call does.
type Room struct {
	Code      RoomCode
	SessionID string
	HostID    UserID
	Status    CallStatus
	AudioOnly bool
	CreatedAt time.Time
	StartedAt time.Time
}
