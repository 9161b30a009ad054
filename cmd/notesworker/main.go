// The notes worker consumes summarize jobs and feeds transcripts to the
// AI summarizer collaborator. It runs separately from the call server
// so summarization load never touches the signaling path.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/config"
	"github.com/calldeck/calldeck/internal/domain"
	"github.com/calldeck/calldeck/internal/notes"
	"github.com/calldeck/calldeck/internal/store/postgres"
)

// placeholderSummarizer stands in until the summarizer service is
// wired. It acknowledges jobs so the queue drains in development.
type placeholderSummarizer struct{}

func (placeholderSummarizer) Summarize(ctx context.Context, sessionID string, segments []domain.TranscriptSegment) error {
	log.Info().Str("module", "notesworker").
		Str("session", sessionID).
		Int("segments", len(segments)).
		Msg("summarizer not configured, transcript acknowledged")
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.RedisAddr == "" || cfg.PostgresDSN == "" {
		log.Fatal().Msg("notes worker requires redis_addr and postgres_dsn")
	}

	pg, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pg.Close()

	worker := notes.NewWorker(cfg.RedisAddr, pg, placeholderSummarizer{})
	go func() {
		<-ctx.Done()
		worker.Shutdown()
	}()

	if err := worker.Start(); err != nil {
		log.Error().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("notes worker exited")
}
