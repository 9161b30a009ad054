package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// handleTranscript accepts one finalized utterance from the sender's
// local recognizer. Interim text never reaches the server. Accepted
// segments fan out to every room member, sender included, so all
// clients render the same canonical log.
func (ctl *Controller) handleTranscript(ctx context.Context, cid core.ConnID, c *wsSignalConn, data []byte) {
	var p struct {
		Type       string    `json:"type"`
		Text       string    `json:"text"`
		CapturedAt time.Time `json:"captured_at"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad transcript payload")
		ctl.sendError(c, "bad_payload", "malformed transcript:manual")
		return
	}
	if p.Text == "" {
		return
	}

	seg, room, accepted := ctl.Orch.SubmitTranscript(ctx, cid, p.Text, p.CapturedAt)
	if !accepted {
		return
	}

	ctl.broadcast(room, "", struct {
		Type    string                   `json:"type"`
		Segment domain.TranscriptSegment `json:"segment"`
	}{"transcript:chunk", seg})
}

func (ctl *Controller) handleNotesRequest(ctx context.Context, cid core.ConnID) {
	ctl.Orch.RequestNotes(ctx, cid)
}
