package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

const (
	defaultGracePeriod = 30 * time.Second
	defaultCodeTTL     = 24 * time.Hour
	defaultSlotTTL     = 24 * time.Hour
	maxCodeAttempts    = 10
)

// RoomRegistry is the single source of truth for "who is in which
// room". Different rooms are independent; all mutation for one room is
// linearized behind its per-room lock.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*roomState

	store      core.SessionStore // optional durable mirror
	codes      core.CodeReserver // optional cross-process code guard
	slots      core.SlotLimiter  // optional cross-process member cap
	maxMembers int
	grace      time.Duration
}

type roomState struct {
	mu         sync.Mutex
	svc        core.RoomService
	graceTimer *time.Timer
}

type RoomRegistryOption func(*RoomRegistry)

func WithSessionStore(s core.SessionStore) RoomRegistryOption {
	return func(r *RoomRegistry) { r.store = s }
}

func WithCodeReserver(c core.CodeReserver) RoomRegistryOption {
	return func(r *RoomRegistry) { r.codes = c }
}

// WithSlotLimiter caps participants per room at max, enforced across
// processes.
func WithSlotLimiter(l core.SlotLimiter, max int) RoomRegistryOption {
	return func(r *RoomRegistry) {
		r.slots = l
		r.maxMembers = max
	}
}

// WithGracePeriod sets how long an all-disconnected room survives
// before teardown. Reconnecting clients depend on this window.
func WithGracePeriod(d time.Duration) RoomRegistryOption {
	return func(r *RoomRegistry) { r.grace = d }
}

func NewRoomRegistry(opts ...RoomRegistryOption) *RoomRegistry {
	r := &RoomRegistry{
		rooms: make(map[domain.RoomCode]*roomState),
		grace: defaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom generates a collision-checked room code and registers a
// new waiting room hosted by host.
func (r *RoomRegistry) CreateRoom(ctx context.Context, host *domain.User, audioOnly bool) (*domain.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := domain.RoomCode(generateRoomCode())

		r.mu.Lock()
		if _, taken := r.rooms[code]; taken {
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()

		if r.codes != nil {
			ok, err := r.codes.Reserve(ctx, code, defaultCodeTTL)
			if err != nil {
				return nil, fmt.Errorf("reserve room code: %w", err)
			}
			if !ok {
				continue
			}
		}

		room := &domain.Room{
			Code:      code,
			SessionID: uuid.NewString(),
			HostID:    host.ID,
			Status:    domain.CallStatusWaiting,
			AudioOnly: audioOnly,
			CreatedAt: time.Now(),
		}

		if r.store != nil {
			if err := r.store.CreateSession(ctx, &domain.Session{
				ID:        room.SessionID,
				RoomCode:  room.Code,
				HostID:    room.HostID,
				Status:    room.Status,
				AudioOnly: room.AudioOnly,
				CreatedAt: room.CreatedAt,
			}); err != nil {
				if r.codes != nil {
					_ = r.codes.Release(ctx, code)
				}
				return nil, fmt.Errorf("persist session: %w", err)
			}
		}

		r.mu.Lock()
		r.rooms[code] = &roomState{svc: core.NewRoomService(room)}
		r.mu.Unlock()

		log.Info().Str("module", "app.rooms").
			Str("room", string(code)).
			Str("session", room.SessionID).
			Str("host", string(host.ID)).
			Msg("room created")
		return room, nil
	}
	return nil, fmt.Errorf("room code space exhausted after %d attempts", maxCodeAttempts)
}

// JoinResult is what a joining client needs to proceed.
type JoinResult struct {
	IsHost    bool
	SessionID string
	Status    domain.CallStatus
	Room      core.RoomService

	// StaleConn is the prior connection of the same user, present when
	// this join was a reconnect replacing it.
	StaleConn core.ConnID
	Replaced  bool
}

// Join idempotently adds (or, on reconnect, replaces) the participant
// entry for user under cid.
func (r *RoomRegistry) Join(ctx context.Context, code domain.RoomCode, user *domain.User, cid core.ConnID, sess core.MemberSession) (JoinResult, error) {
	rs, ok := r.get(code)
	if !ok {
		return JoinResult{}, domain.ErrNotFound
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	room := rs.svc.Snapshot()
	if room.Status == domain.CallStatusEnded {
		return JoinResult{}, domain.ErrConflict
	}

	// A join during the all-disconnected window rescues the room.
	if rs.graceTimer != nil {
		rs.graceTimer.Stop()
		rs.graceTimer = nil
	}

	// A reconnect replaces the user's existing slot; only genuinely new
	// participants claim one.
	if r.slots != nil {
		if _, _, rejoining := rs.svc.MemberByUser(user.ID); !rejoining {
			ok, err := r.slots.AcquireSlot(ctx, code, r.maxMembers, defaultSlotTTL)
			if err != nil {
				return JoinResult{}, fmt.Errorf("acquire room slot: %w", err)
			}
			if !ok {
				return JoinResult{}, domain.ErrRoomFull
			}
		}
	}

	stale, replaced := rs.svc.AddMember(cid, sess)

	res := JoinResult{
		IsHost:    user.ID == room.HostID,
		SessionID: room.SessionID,
		Status:    room.Status,
		Room:      rs.svc,
		StaleConn: stale,
		Replaced:  replaced,
	}
	log.Info().Str("module", "app.rooms").
		Str("room", string(code)).
		Str("user", string(user.ID)).
		Str("conn", string(cid)).
		Bool("is_host", res.IsHost).
		Msg("joined room")
	return res, nil
}

// MarkActive flips a waiting room to active once a second participant
// has connected. No-op in any other status.
func (r *RoomRegistry) MarkActive(code domain.RoomCode) bool {
	rs, ok := r.get(code)
	if !ok {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	activated := false
	rs.svc.Update(func(room *domain.Room) {
		if room.Status != domain.CallStatusWaiting {
			return
		}
		room.Status = domain.CallStatusActive
		room.StartedAt = time.Now()
		activated = true
	})
	if activated {
		log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("call started")
	}
	return activated
}

// Leave removes the participant. The last departure does not destroy
// the room immediately; a grace timer tolerates brief all-disconnected
// windows during reconnection.
func (r *RoomRegistry) Leave(code domain.RoomCode, cid core.ConnID) {
	rs, ok := r.get(code)
	if !ok {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	_, present := rs.svc.Member(cid)
	rs.svc.RemoveMember(cid)
	if present && r.slots != nil {
		_ = r.slots.ReleaseSlot(context.Background(), code)
	}
	if rs.svc.MemberCount() > 0 || rs.svc.Status() == domain.CallStatusEnded {
		return
	}
	if rs.graceTimer != nil {
		rs.graceTimer.Stop()
	}
	rs.graceTimer = time.AfterFunc(r.grace, func() { r.expire(code) })
	log.Info().Str("module", "app.rooms").
		Str("room", string(code)).
		Dur("grace", r.grace).
		Msg("room empty, teardown scheduled")
}

// Close ends the call. Host-only.
func (r *RoomRegistry) Close(ctx context.Context, code domain.RoomCode, requester domain.UserID) (int, error) {
	rs, ok := r.get(code)
	if !ok {
		return 0, domain.ErrNotFound
	}

	rs.mu.Lock()
	room := rs.svc.Snapshot()
	if room.HostID != requester {
		rs.mu.Unlock()
		return 0, domain.ErrForbidden
	}
	if room.Status == domain.CallStatusEnded {
		rs.mu.Unlock()
		return 0, domain.ErrConflict
	}
	endedAt := time.Now()
	var duration int
	rs.svc.Update(func(room *domain.Room) {
		room.Status = domain.CallStatusEnded
		started := room.StartedAt
		if started.IsZero() {
			started = room.CreatedAt
		}
		duration = int(endedAt.Sub(started).Seconds())
	})
	if rs.graceTimer != nil {
		rs.graceTimer.Stop()
		rs.graceTimer = nil
	}
	rs.mu.Unlock()

	if r.store != nil {
		if err := r.store.EndSession(ctx, room.SessionID, endedAt, duration); err != nil {
			log.Error().Err(err).Str("module", "app.rooms").
				Str("session", room.SessionID).
				Msg("persist session end")
		}
	}
	r.remove(code)
	if r.codes != nil {
		_ = r.codes.Release(ctx, code)
	}
	if r.slots != nil {
		_ = r.slots.ResetSlots(ctx, code)
	}
	log.Info().Str("module", "app.rooms").
		Str("room", string(code)).
		Int("duration_s", duration).
		Msg("room closed")
	return duration, nil
}

// Get returns the live room for a code, if any.
func (r *RoomRegistry) Get(code domain.RoomCode) (core.RoomService, bool) {
	rs, ok := r.get(code)
	if !ok {
		return nil, false
	}
	return rs.svc, true
}

type RoomInfo struct {
	Code        domain.RoomCode   `json:"code"`
	Status      domain.CallStatus `json:"status"`
	MemberCount int               `json:"member_count"`
}

func (r *RoomRegistry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for code, rs := range r.rooms {
		out = append(out, RoomInfo{
			Code:        code,
			Status:      rs.svc.Status(),
			MemberCount: rs.svc.MemberCount(),
		})
	}
	return out
}

// expire tears down a room whose grace window lapsed with nobody in it.
func (r *RoomRegistry) expire(code domain.RoomCode) {
	rs, ok := r.get(code)
	if !ok {
		return
	}
	rs.mu.Lock()
	if rs.svc.MemberCount() > 0 {
		// Somebody came back between timer fire and lock acquisition.
		rs.mu.Unlock()
		return
	}
	endedAt := time.Now()
	var (
		room         domain.Room
		alreadyEnded bool
		duration     int
	)
	rs.svc.Update(func(rm *domain.Room) {
		alreadyEnded = rm.Status == domain.CallStatusEnded
		rm.Status = domain.CallStatusEnded
		started := rm.StartedAt
		if started.IsZero() {
			started = rm.CreatedAt
		}
		duration = int(endedAt.Sub(started).Seconds())
		room = *rm
	})
	rs.mu.Unlock()

	if r.store != nil && !alreadyEnded {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.EndSession(ctx, room.SessionID, endedAt, duration); err != nil {
			log.Error().Err(err).Str("module", "app.rooms").
				Str("session", room.SessionID).
				Msg("persist session end on expiry")
		}
	}
	r.remove(code)
	if r.codes != nil {
		_ = r.codes.Release(context.Background(), code)
	}
	if r.slots != nil {
		_ = r.slots.ResetSlots(context.Background(), code)
	}
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room expired")
}

func (r *RoomRegistry) get(code domain.RoomCode) (*roomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rooms[code]
	return rs, ok
}

func (r *RoomRegistry) remove(code domain.RoomCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, code)
}
