package core

import (
	"context"
	"io"
	"time"

	"github.com/calldeck/calldeck/internal/domain"
)

// SessionStore is the durable record collaborator. The live call never
// depends on it for correctness; writes are best-effort mirrors.
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	EndSession(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds int) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	AppendTranscript(ctx context.Context, segments []domain.TranscriptSegment) error
	SaveRecording(ctx context.Context, rec *domain.Recording) error
}

// RecordingSink persists one uploaded media artifact and returns its
// durable reference.
type RecordingSink interface {
	Store(ctx context.Context, sessionID string, userID domain.UserID, r io.Reader, size int64) (url string, err error)
}

// NotesDispatcher hands a finished transcript to the AI summarizer
// collaborator. Fire-and-forget.
type NotesDispatcher interface {
	RequestNotes(ctx context.Context, sessionID string) error
}

// CodeReserver guards room codes against reuse while a room with that
// code is live anywhere. Optional; nil means in-process checks only.
type CodeReserver interface {
	Reserve(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error)
	Release(ctx context.Context, code domain.RoomCode) error
}

// SlotLimiter caps concurrent participants per room across processes.
// Optional; nil means the in-memory membership map is the only bound.
type SlotLimiter interface {
	AcquireSlot(ctx context.Context, code domain.RoomCode, limit int, ttl time.Duration) (bool, error)
	ReleaseSlot(ctx context.Context, code domain.RoomCode) error
	ResetSlots(ctx context.Context, code domain.RoomCode) error
}
