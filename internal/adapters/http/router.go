package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/adapters/signal"
	"github.com/calldeck/calldeck/internal/app/orch"
	"github.com/calldeck/calldeck/internal/auth"
	"github.com/calldeck/calldeck/internal/config"
	"github.com/calldeck/calldeck/internal/core"
)

// Deps is everything the HTTP surface needs injected.
type Deps struct {
	Orch  *orch.Orchestrator
	Auth  *auth.Manager
	Store core.SessionStore  // optional
	Sink  core.RecordingSink // optional
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CalldeckSessions", store))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	ctl := signal.NewController(deps.Orch)
	rooms := &roomHandlers{Orch: deps.Orch, Signal: ctl}
	recs := &recordingHandlers{Store: deps.Store, Sink: deps.Sink}

	api := r.Group("/api")
	api.Use(auth.RequireAccessToken(deps.Auth))

	api.GET("/ws/channel", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").
			Str("user", c.GetString("user_id")).
			Msg("ws channel endpoint hit")
		ctl.HandleChannel(ctx, c)
	})

	api.POST("/rooms", rooms.create)
	api.GET("/rooms", rooms.list)
	api.POST("/rooms/:code/join", rooms.join)
	api.POST("/rooms/:code/close", rooms.close)

	api.GET("/sessions/:id", recs.getSession)
	api.POST("/sessions/:id/recording", recs.upload)

	return r
}
