package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// SubmitTranscript attributes a finalized utterance to the sending
// connection's participant and runs it through the aggregator. Returns
// the accepted segment (with sequence assigned) and the room for
// fan-out; accepted is false for suppressed duplicates.
func (o *Orchestrator) SubmitTranscript(ctx context.Context, cid core.ConnID, text string, capturedAt time.Time) (domain.TranscriptSegment, core.RoomService, bool) {
	code, sess, ok := o.Registry.RoomOf(cid)
	if !ok {
		return domain.TranscriptSegment{}, nil, false
	}
	room, ok := o.Rooms.Get(code)
	if !ok {
		return domain.TranscriptSegment{}, nil, false
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	user := sess.Meta().User
	seg := domain.TranscriptSegment{
		SessionID:   room.Snapshot().SessionID,
		SpeakerID:   user.ID,
		SpeakerName: user.DisplayName,
		Text:        text,
		CapturedAt:  capturedAt,
	}
	seg, accepted := o.Transcripts.Submit(ctx, seg)
	return seg, room, accepted
}

// RequestNotes hands the session's transcript to the AI summarizer
// collaborator. Fire-and-forget: failures are logged, never surfaced to
// the live call.
func (o *Orchestrator) RequestNotes(ctx context.Context, cid core.ConnID) {
	if o.Notes == nil {
		return
	}
	code, _, ok := o.Registry.RoomOf(cid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(code)
	if !ok {
		return
	}
	sessionID := room.Snapshot().SessionID
	if err := o.Notes.RequestNotes(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("module", "orch").
			Str("session", sessionID).
			Msg("notes request dispatch")
	}
}
