package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/app/orch"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the websocket side of the session control plane: one
// connection per client, named-event envelopes, pumps, and dispatch.
type Controller struct {
	Orch    *orch.Orchestrator
	Limiter *JoinRateLimiter
}

func NewController(o *orch.Orchestrator) *Controller {
	return &Controller{
		Orch:    o,
		Limiter: NewJoinRateLimiter(10, time.Minute),
	}
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleChannel upgrades the request and binds a fresh connection id to
// the pre-authenticated caller. Identity comes from the JWT middleware.
func (ctl *Controller) HandleChannel(ctx context.Context, c *gin.Context) {
	user := &domain.User{
		ID:          domain.UserID(c.GetString("user_id")),
		DisplayName: c.GetString("user_name"),
	}
	if user.ID == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	cid := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").
		Str("conn", string(cid)).
		Str("user", string(user.ID)).
		Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	meta := domain.NewParticipant(user)
	sess := core.NewMemberSession(meta).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(cid, sess, cancel)

	ack := struct {
		Type   string      `json:"type"`
		ConnID core.ConnID `json:"conn_id"`
	}{"channel:ready", cid}
	ctl.sendJSON(conn, ack)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cid, conn)
}

func (ctl *Controller) sendJSON(c *wsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsSignalConn, code, msg string) {
	ctl.sendJSON(c, struct {
		Type  string `json:"type"`
		Code  string `json:"code"`
		Error string `json:"error"`
	}{"error", code, msg})
}

// BroadcastRoom fans an event out to every member of room. Used by the
// HTTP adapter for lifecycle events originating outside the socket.
func (ctl *Controller) BroadcastRoom(room core.RoomService, v any) {
	ctl.broadcast(room, "", v)
}

// broadcast marshals v once and fans it out to every member of room,
// excluding from (use "" to include everyone).
func (ctl *Controller) broadcast(room core.RoomService, from core.ConnID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("broadcast marshal")
		return
	}
	ctl.Orch.BroadcastFrame(room, from, b)
}
