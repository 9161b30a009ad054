package notes

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Dispatcher implements core.NotesDispatcher by enqueuing a summarize
// job for the worker.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(redisAddr string) *Dispatcher {
	return &Dispatcher{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
	}
}

func (d *Dispatcher) RequestNotes(ctx context.Context, sessionID string) error {
	task, err := NewSummarizeTask(sessionID)
	if err != nil {
		return fmt.Errorf("build summarize task: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue summarize task: %w", err)
	}
	log.Info().Str("module", "notes").
		Str("session", sessionID).
		Str("task_id", info.ID).
		Msg("notes job enqueued")
	return nil
}

func (d *Dispatcher) Close() error { return d.client.Close() }
