package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/calldeck/calldeck/internal/adapters/http"
	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/app/orch"
	"github.com/calldeck/calldeck/internal/auth"
	"github.com/calldeck/calldeck/internal/config"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/notes"
	"github.com/calldeck/calldeck/internal/store/fsblob"
	"github.com/calldeck/calldeck/internal/store/postgres"
	"github.com/calldeck/calldeck/internal/store/redisstate"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	authMgr, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, time.Hour)
	if err != nil {
		log.Fatal().Err(err).Msg("auth manager")
	}

	var sessionStore core.SessionStore
	if cfg.PostgresDSN != "" {
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer pg.Close()
		sessionStore = pg
	} else {
		log.Warn().Msg("no postgres DSN configured, sessions are not persisted")
	}

	roomOpts := []app.RoomRegistryOption{app.WithGracePeriod(cfg.GracePeriod)}
	if sessionStore != nil {
		roomOpts = append(roomOpts, app.WithSessionStore(sessionStore))
	}

	var notesDispatcher core.NotesDispatcher
	if cfg.RedisAddr != "" {
		rds, err := redisstate.Open(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rds.Close()
		roomOpts = append(roomOpts,
			app.WithCodeReserver(rds),
			app.WithSlotLimiter(rds, cfg.MaxParticipants))

		d := notes.NewDispatcher(cfg.RedisAddr)
		defer d.Close()
		notesDispatcher = d
	} else {
		log.Warn().Msg("no redis configured, room codes are process-local and notes are disabled")
	}

	aggOpts := []app.AggregatorOption{app.WithDedupWindow(cfg.TranscriptDedupWindow)}
	if sessionStore != nil {
		aggOpts = append(aggOpts, app.WithTranscriptStore(sessionStore))
	}

	orchestrator := &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Rooms:       app.NewRoomRegistry(roomOpts...),
		Transcripts: app.NewAggregator(aggOpts...),
		Notes:       notesDispatcher,
		Policy:      app.DropPolicy{},
	}
	orchestrator.Relay = app.NewRelay(orchestrator.Rooms)

	sink, err := fsblob.New(cfg.RecordingDir)
	if err != nil {
		log.Fatal().Err(err).Msg("recording sink")
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:  orchestrator,
		Auth:  authMgr,
		Store: sessionStore,
		Sink:  sink,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Calldeck server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
