package app

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

const (
	// DefaultDedupWindow is the tolerance within which a re-submitted
	// segment from the same speaker counts as a duplicate. Tunable, not
	// a hard contract.
	DefaultDedupWindow = 10 * time.Second

	defaultFlushEvery = 20

	// dedupScanLimit bounds the tail scan; wall clocks of independent
	// senders are only roughly monotone in arrival order.
	dedupScanLimit = 64
)

// Aggregator merges finalized speech segments from all participants
// into one ordered, deduplicated, speaker-attributed log per session.
// Segments are appended in arrival order; no cross-client clock
// synchronization is attempted.
type Aggregator struct {
	mu   sync.Mutex
	logs map[string]*sessionLog

	window     time.Duration
	flushEvery int
	store      core.SessionStore // optional
}

type sessionLog struct {
	segments []domain.TranscriptSegment
	flushed  int
	seq      int
}

type AggregatorOption func(*Aggregator)

func WithDedupWindow(d time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.window = d }
}

func WithTranscriptStore(s core.SessionStore) AggregatorOption {
	return func(a *Aggregator) { a.store = s }
}

func WithFlushEvery(n int) AggregatorOption {
	return func(a *Aggregator) { a.flushEvery = n }
}

func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		logs:       make(map[string]*sessionLog),
		window:     DefaultDedupWindow,
		flushEvery: defaultFlushEvery,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Submit accepts a finalized segment. The returned segment carries the
// assigned sequence number; accepted reports whether it entered the log
// or was suppressed as a duplicate.
func (a *Aggregator) Submit(ctx context.Context, seg domain.TranscriptSegment) (domain.TranscriptSegment, bool) {
	a.mu.Lock()
	sl, ok := a.logs[seg.SessionID]
	if !ok {
		sl = &sessionLog{}
		a.logs[seg.SessionID] = sl
	}

	if a.isDuplicate(sl, seg) {
		a.mu.Unlock()
		log.Debug().Str("module", "app.transcript").
			Str("session", seg.SessionID).
			Str("speaker", string(seg.SpeakerID)).
			Msg("duplicate segment suppressed")
		return seg, false
	}

	seg.Seq = sl.seq
	sl.seq++
	sl.segments = append(sl.segments, seg)

	var toFlush []domain.TranscriptSegment
	if a.store != nil && len(sl.segments)-sl.flushed >= a.flushEvery {
		toFlush = append(toFlush, sl.segments[sl.flushed:]...)
		sl.flushed = len(sl.segments)
	}
	a.mu.Unlock()

	if len(toFlush) > 0 {
		if err := a.store.AppendTranscript(ctx, toFlush); err != nil {
			log.Error().Err(err).Str("module", "app.transcript").
				Str("session", seg.SessionID).
				Msg("incremental transcript flush")
		}
	}
	return seg, true
}

// Log returns a copy of the session's accepted segments in order.
func (a *Aggregator) Log(sessionID string) []domain.TranscriptSegment {
	a.mu.Lock()
	defer a.mu.Unlock()
	sl, ok := a.logs[sessionID]
	if !ok {
		return nil
	}
	out := make([]domain.TranscriptSegment, len(sl.segments))
	copy(out, sl.segments)
	return out
}

// Close flushes the remaining tail to the store and drops the in-memory
// log, returning the full transcript.
func (a *Aggregator) Close(ctx context.Context, sessionID string) []domain.TranscriptSegment {
	a.mu.Lock()
	sl, ok := a.logs[sessionID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.logs, sessionID)
	full := sl.segments
	tail := sl.segments[sl.flushed:]
	a.mu.Unlock()

	if a.store != nil && len(tail) > 0 {
		if err := a.store.AppendTranscript(ctx, tail); err != nil {
			log.Error().Err(err).Str("module", "app.transcript").
				Str("session", sessionID).
				Msg("final transcript flush")
		}
	}
	return full
}

// DisplayName is the per-viewer identity relabeling: a viewer sees
// their own segments as "You". Pure presentation; the stored segment is
// never mutated.
func DisplayName(viewer domain.UserID, seg domain.TranscriptSegment) string {
	if viewer != "" && viewer == seg.SpeakerID {
		return "You"
	}
	return seg.SpeakerName
}

func (a *Aggregator) isDuplicate(sl *sessionLog, seg domain.TranscriptSegment) bool {
	norm := normalizeText(seg.Text)
	scanned := 0
	for i := len(sl.segments) - 1; i >= 0 && scanned < dedupScanLimit; i-- {
		prev := sl.segments[i]
		scanned++
		d := seg.CapturedAt.Sub(prev.CapturedAt)
		if d < 0 {
			d = -d
		}
		if d > a.window {
			// Arrival order tracks capture time closely enough that
			// everything older than the window ends here.
			break
		}
		if !sameSpeaker(prev, seg) {
			continue
		}
		if normalizeText(prev.Text) == norm {
			return true
		}
	}
	return false
}

// sameSpeaker prefers the speaker id whenever both sides carry one and
// only falls back to the display name otherwise.
func sameSpeaker(a, b domain.TranscriptSegment) bool {
	if a.SpeakerID != "" && b.SpeakerID != "" {
		return a.SpeakerID == b.SpeakerID
	}
	return a.SpeakerName == b.SpeakerName
}

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			// punctuation is ignored for near-identical matching
		}
	}
	return b.String()
}
