package domain

import "time"

// Session is the durable record of one call occurring within a room,
// spanning start to end. It outlives the in-memory Room.
type Session struct {
	ID              string     `json:"id"`
	RoomCode        RoomCode   `json:"room_code"`
	HostID          UserID     `json:"host_id"`
	Status          CallStatus `json:"status"`
	AudioOnly       bool       `json:"audio_only"`
	CreatedAt       time.Time  `json:"created_at"`
	EndedAt         time.Time  `json:"ended_at,omitzero"`
	DurationSeconds int        `json:"duration_seconds"`
	RecordingURL    string     `json:"recording_url,omitempty"`
}

// TranscriptSegment is one finalized utterance. Immutable once accepted
// by the aggregator; Seq is assigned at acceptance, in arrival order.
type TranscriptSegment struct {
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"seq"`
	SpeakerID   UserID    `json:"speaker_id"`
	SpeakerName string    `json:"speaker"`
	Text        string    `json:"text"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Recording references one uploaded media artifact for a session.
type Recording struct {
	SessionID string    `json:"session_id"`
	UserID    UserID    `json:"user_id"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
