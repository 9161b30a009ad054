// Package postgres mirrors call sessions, transcripts and recording
// references into durable storage. The live call never waits on it.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calldeck/calldeck/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, room_code, host_id, status, audio_only, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.RoomCode, sess.HostID, sess.Status, sess.AudioOnly, sess.CreatedAt)
	return err
}

func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time, durationSeconds int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET status = $2, ended_at = $3, duration_seconds = $4
		WHERE id = $1`,
		sessionID, domain.CallStatusEnded, endedAt, durationSeconds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sess domain.Session
	var endedAt *time.Time
	var recordingURL *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, room_code, host_id, status, audio_only, created_at, ended_at, duration_seconds, recording_url
		FROM sessions WHERE id = $1`, sessionID).Scan(
		&sess.ID, &sess.RoomCode, &sess.HostID, &sess.Status, &sess.AudioOnly,
		&sess.CreatedAt, &endedAt, &sess.DurationSeconds, &recordingURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if endedAt != nil {
		sess.EndedAt = *endedAt
	}
	if recordingURL != nil {
		sess.RecordingURL = *recordingURL
	}
	return &sess, nil
}

// AppendTranscript writes a batch of accepted segments. Segments are
// immutable, so conflicts on (session_id, seq) are ignored; a re-flush
// after a partial failure must not duplicate rows.
func (s *Store) AppendTranscript(ctx context.Context, segments []domain.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, seg := range segments {
		batch.Queue(`
			INSERT INTO transcript_segments (session_id, seq, speaker_id, speaker_name, text, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (session_id, seq) DO NOTHING`,
			seg.SessionID, seg.Seq, seg.SpeakerID, seg.SpeakerName, seg.Text, seg.CapturedAt)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range segments {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// Transcript loads the stored segments for a session in sequence order.
func (s *Store) Transcript(ctx context.Context, sessionID string) ([]domain.TranscriptSegment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, seq, speaker_id, speaker_name, text, captured_at
		FROM transcript_segments
		WHERE session_id = $1
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TranscriptSegment
	for rows.Next() {
		var seg domain.TranscriptSegment
		if err := rows.Scan(&seg.SessionID, &seg.Seq, &seg.SpeakerID, &seg.SpeakerName, &seg.Text, &seg.CapturedAt); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// SaveRecording records the durable reference for an uploaded artifact.
// First write per (session, user) wins.
func (s *Store) SaveRecording(ctx context.Context, rec *domain.Recording) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recordings (session_id, user_id, url, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, user_id) DO NOTHING`,
		rec.SessionID, rec.UserID, rec.URL, rec.SizeBytes, rec.CreatedAt)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE sessions SET recording_url = $2
		WHERE id = $1 AND recording_url IS NULL`,
		rec.SessionID, rec.URL)
	return err
}
