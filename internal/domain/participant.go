package domain

import "time"

// Participant represents a user's membership meta for a room.
// No transport or lifecycle logic here.
type Participant struct {
	User     *User
	JoinedAt time.Time
	Muted    bool
	VideoOff bool
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(user *User) *Participant {
	return &Participant{User: user, JoinedAt: time.Now()}
}
