package notes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/domain"
)

// TranscriptSource yields the stored transcript for a session.
type TranscriptSource interface {
	Transcript(ctx context.Context, sessionID string) ([]domain.TranscriptSegment, error)
}

// Summarizer is the external AI collaborator. It consumes the final
// transcript and persists notes on its own side.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string, segments []domain.TranscriptSegment) error
}

// Worker runs the asynq consumer for summarize jobs.
type Worker struct {
	server     *asynq.Server
	source     TranscriptSource
	summarizer Summarizer
}

func NewWorker(redisAddr string, source TranscriptSource, summarizer Summarizer) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 4,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Error().Err(err).Str("module", "notes.worker").
					Str("task_type", task.Type()).
					Int("retried", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
	return &Worker{server: server, source: source, summarizer: summarizer}
}

// Start runs the consumer loop. Call from its own goroutine.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSummarizeTranscript, w.handleSummarize)
	log.Info().Str("module", "notes.worker").Msg("worker starting")
	return w.server.Run(mux)
}

func (w *Worker) Shutdown() { w.server.Shutdown() }

func (w *Worker) handleSummarize(ctx context.Context, t *asynq.Task) error {
	var p SummarizePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("bad summarize payload: %w", err)
	}

	segments, err := w.source.Transcript(ctx, p.SessionID)
	if err != nil {
		return fmt.Errorf("load transcript %s: %w", p.SessionID, err)
	}
	if len(segments) == 0 {
		log.Warn().Str("module", "notes.worker").
			Str("session", p.SessionID).
			Msg("empty transcript, skipping summarize")
		return nil
	}

	if err := w.summarizer.Summarize(ctx, p.SessionID, segments); err != nil {
		return fmt.Errorf("summarize %s: %w", p.SessionID, err)
	}
	log.Info().Str("module", "notes.worker").
		Str("session", p.SessionID).
		Int("segments", len(segments)).
		Msg("notes generated")
	return nil
}
