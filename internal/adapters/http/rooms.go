package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/adapters/signal"
	"github.com/calldeck/calldeck/internal/app/orch"
	"github.com/calldeck/calldeck/internal/domain"
)

type roomHandlers struct {
	Orch   *orch.Orchestrator
	Signal *signal.Controller
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrRoomFull):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *roomHandlers) create(c *gin.Context) {
	var req struct {
		AudioOnly bool `json:"audio_only"`
	}
	// Body is optional; an empty POST creates a default room.
	_ = c.ShouldBindJSON(&req)

	host := &domain.User{
		ID:          domain.UserID(c.GetString("user_id")),
		DisplayName: c.GetString("user_name"),
	}
	room, err := h.Orch.Rooms.CreateRoom(c.Request.Context(), host, req.AudioOnly)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"room_code":  room.Code,
		"session_id": room.SessionID,
	})
}

func (h *roomHandlers) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Orch.Rooms.List()})
}

// join is the preflight check: it validates the code and tells the
// caller whether they will be host. Actual membership is established on
// the websocket channel with room:join.
func (h *roomHandlers) join(c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	room, ok := h.Orch.Rooms.Get(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	r := room.Snapshot()
	if r.Status == domain.CallStatusEnded {
		c.JSON(http.StatusConflict, gin.H{"error": "session already ended"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"is_host":    domain.UserID(c.GetString("user_id")) == r.HostID,
		"session_id": r.SessionID,
		"status":     r.Status,
	})
}

func (h *roomHandlers) close(c *gin.Context) {
	code := domain.RoomCode(c.Param("code"))
	requester := domain.UserID(c.GetString("user_id"))

	duration, room, err := h.Orch.Close(c.Request.Context(), code, requester)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	h.Signal.BroadcastRoom(room, gin.H{
		"type":             "call:ended",
		"session_id":       room.Snapshot().SessionID,
		"duration_seconds": duration,
	})
	c.JSON(http.StatusOK, gin.H{"duration_seconds": duration})
}
