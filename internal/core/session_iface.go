package core

import "github.com/calldeck/calldeck/internal/domain"

// ConnID identifies one live transport connection. A reconnecting user
// arrives with a fresh ConnID but the same domain.UserID.
type ConnID string

// MemberSession binds domain.Participant and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Participant
	Signal() SignalConnection
	UpdateSignal(SignalConnection) MemberSession
}
