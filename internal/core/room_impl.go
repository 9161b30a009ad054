package core

import (
	"errors"
	"sync"

	"github.com/calldeck/calldeck/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoSuchMember = errors.New("no such member")

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room   *domain.Room
	mu     sync.RWMutex
	byConn map[ConnID]MemberSession
	byUser map[domain.UserID]ConnID
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		byConn: make(map[ConnID]MemberSession),
		byUser: make(map[domain.UserID]ConnID),
	}
}

func (r *roomImpl) Snapshot() domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.room
}

func (r *roomImpl) Status() domain.CallStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.room.Status
}

func (r *roomImpl) Update(fn func(*domain.Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.room)
}

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) AddMember(cid ConnID, ms MemberSession) (ConnID, bool) {
	u := ms.Meta().User.ID
	r.mu.Lock()
	defer r.mu.Unlock()

	stale, replaced := r.byUser[u]
	if replaced && stale != cid {
		// Reconnect: same user, new connection. Replace, never duplicate.
		delete(r.byConn, stale)
	} else {
		replaced = false
	}
	r.byConn[cid] = ms
	r.byUser[u] = cid
	log.Info().Str("module", "core.room").
		Str("room", string(r.room.Code)).
		Str("conn", string(cid)).
		Str("user", string(u)).
		Bool("replaced", replaced).
		Msg("member added")
	return stale, replaced
}

func (r *roomImpl) RemoveMember(cid ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[cid]
	if !ok {
		return
	}
	u := ms.Meta().User.ID
	// Only drop the user index if it still points at this connection;
	// a reconnect may already have claimed it.
	if r.byUser[u] == cid {
		delete(r.byUser, u)
	}
	delete(r.byConn, cid)
	log.Info().Str("module", "core.room").
		Str("room", string(r.room.Code)).
		Str("conn", string(cid)).
		Msg("member removed")
}

func (r *roomImpl) Member(cid ConnID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.byConn[cid]
	return ms, ok
}

func (r *roomImpl) MemberByUser(uid domain.UserID) (ConnID, MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cid, ok := r.byUser[uid]
	if !ok {
		return "", nil, false
	}
	return cid, r.byConn[cid], true
}

func (r *roomImpl) Broadcast(from ConnID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for cid, m := range r.byConn {
		if cid == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").
		Str("from", string(from)).
		Int("sent_to", res.SentTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(cid ConnID, data Frame) error {
	r.mu.RLock()
	ms, ok := r.byConn[cid]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSuchMember
	}
	return ms.Signal().TrySend(data)
}

func (r *roomImpl) MembersSnapshot() []ParticipantDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ParticipantDTO, 0, len(r.byConn))
	for cid, ms := range r.byConn {
		p := ms.Meta()
		out = append(out, ParticipantDTO{
			ConnID:   cid,
			UserID:   p.User.ID,
			Name:     p.User.DisplayName,
			IsHost:   p.User.ID == r.room.HostID,
			Muted:    p.Muted,
			VideoOff: p.VideoOff,
		})
	}
	return out
}
