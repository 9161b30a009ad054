// Package notes bridges finished transcripts to the AI summarizer
// collaborator through a background job queue. Dispatch is
// fire-and-forget: the live call never depends on it.
package notes

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TypeSummarizeTranscript = "notes:summarize"

type SummarizePayload struct {
	SessionID string `json:"session_id"`
}

func NewSummarizeTask(sessionID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SummarizePayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSummarizeTranscript, payload, asynq.MaxRetry(3), asynq.Queue("default")), nil
}
