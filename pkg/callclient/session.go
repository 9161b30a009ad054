package callclient

import (
	"context"
	"sync"
	"time"
)

// State is the session machine's lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateEnded      State = "ended"
)

// Participant is a room member as seen by this client.
type Participant struct {
	ConnID   string `json:"conn_id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	IsHost   bool   `json:"is_host"`
	Muted    bool   `json:"muted"`
	VideoOff bool   `json:"video_off"`
}

// TranscriptEntry is one finalized utterance in the shared log.
type TranscriptEntry struct {
	Seq        int       `json:"seq"`
	SpeakerID  string    `json:"speaker_id"`
	Speaker    string    `json:"speaker"`
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
}

// Config assembles the session's collaborators. Signaler, Media and
// NewPeer are required; the rest degrade to disabled features.
type Config struct {
	Signaler      Signaler
	Media         MediaProvider
	NewPeer       PeerFactory
	NewRecognizer RecognizerFactory
	Capture       CaptureSource
	Uploader      Uploader

	// UserID is the authenticated caller, used to label own transcript
	// entries.
	UserID    string
	AudioOnly bool

	// RefreshCredentials renews the access token when the server
	// rejects a join as unauthorized. Tried once per Join.
	RefreshCredentials func(ctx context.Context) error

	JoinTimeout        time.Duration
	RecognizerBackoff  Backoff
	NegotiationRetries int
	ChunkInterval      time.Duration

	OnState        func(State)
	OnNotice       func(code, message string)
	OnTranscript   func(TranscriptEntry)
	OnInterim      func(text string)
	OnParticipants func([]Participant)
}

type joinReply struct {
	ok      bool
	errCode string
	payload roomJoined
}

type roomJoined struct {
	Room      string        `json:"room"`
	SessionID string        `json:"session_id"`
	IsHost    bool          `json:"is_host"`
	Status    string        `json:"status"`
	AudioOnly bool          `json:"audio_only"`
	Members   []Participant `json:"members"`
}

// Session drives one client through the call lifecycle: idle until
// join, connecting while the transport and room handshake settle,
// waiting alone in the room, active once the peer link is up, ended
// when the call closes. Transcription and recording run only while the
// peer link is connected, the transport is up and the caller is not
// muted; the conjunction is re-evaluated on every event that can change
// it.
type Session struct {
	cfg Config

	mu           sync.Mutex
	state        State
	connID       string
	roomCode     string
	sessionID    string
	isHost       bool
	muted        bool
	videoOff     bool
	media        MediaStream
	peer         PeerLink
	peerTo       string
	offerer      bool
	peerAttempts int
	transcriber  *transcriber
	recorder     *Recorder
	transcript   []TranscriptEntry
	participants map[string]Participant
	joinCh       chan joinReply
	joining      bool
	finished     bool

	// Pipeline trigger decisions are recorded under mu and applied by a
	// single goroutine, so a stop decided by an earlier event can never
	// land after a start decided by a later one.
	pipeWant bool
	pipeKick chan struct{}
	pipeDone chan struct{}
}

// NewSession wires the machine onto the signaler. Call Join to enter a
// room.
func NewSession(cfg Config) *Session {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if cfg.RecognizerBackoff == (Backoff{}) {
		cfg.RecognizerBackoff = RestartBackoff()
	}
	if cfg.NegotiationRetries <= 0 {
		cfg.NegotiationRetries = 2
	}
	s := &Session{
		cfg:          cfg,
		state:        StateIdle,
		participants: make(map[string]Participant),
	}
	s.bind()
	return s
}

func (s *Session) bind() {
	sig := s.cfg.Signaler
	sig.On("channel:ready", s.onChannelReady)
	sig.On("room:joined", s.onRoomJoined)
	sig.On("user:joined", s.onUserJoined)
	sig.On("user:left", s.onUserLeft)
	sig.On("user:muted", s.onUserMuted)
	sig.On("signal:offer", s.onOffer)
	sig.On("signal:answer", s.onAnswer)
	sig.On("signal:candidate", s.onCandidate)
	sig.On("call:started", s.onCallStarted)
	sig.On("call:ended", s.onCallEnded)
	sig.On("transcript:chunk", s.onTranscriptChunk)
	sig.On("error", s.onServerError)
	sig.OnDisconnect(func() {
		s.mu.Lock()
		s.evaluatePipelines()
		s.mu.Unlock()
	})
}

// Join acquires local media, connects the transport and enters the
// room. Media comes first: a permission denial fails the join before
// any state transition, leaving the session idle. Join errors map to
// the package sentinels.
func (s *Session) Join(ctx context.Context, roomCode string) error {
	s.mu.Lock()
	if s.state != StateIdle || s.joining {
		s.mu.Unlock()
		return ErrBusy
	}
	s.joining = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.joining = false
		s.mu.Unlock()
	}()

	media, err := s.cfg.Media.Acquire(ctx, s.cfg.AudioOnly)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateConnecting
	s.media = media
	s.roomCode = roomCode
	s.finished = false
	s.joinCh = make(chan joinReply, 1)
	joinCh := s.joinCh
	s.transcriber = newTranscriber(s.cfg.NewRecognizer, s.cfg.RecognizerBackoff)
	s.transcriber.onFinal = s.publishUtterance
	s.transcriber.onEvent = s.onRecognition
	s.transcriber.onErr = s.onRecognizerDown
	s.recorder = NewRecorder(s.cfg.Capture, s.cfg.Uploader, s.cfg.ChunkInterval)
	s.pipeWant = false
	s.pipeKick = make(chan struct{}, 1)
	s.pipeDone = make(chan struct{})
	go s.applyPipelines(s.pipeKick, s.pipeDone)
	s.mu.Unlock()
	s.notifyState(StateConnecting)

	if err := s.connectAndJoin(ctx, roomCode, joinCh); err != nil {
		s.abortJoin()
		return err
	}
	return nil
}

func (s *Session) connectAndJoin(ctx context.Context, roomCode string, joinCh chan joinReply) error {
	// The transport run loop outlives Join; ctx only bounds the waits.
	if err := s.cfg.Signaler.Connect(context.Background()); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
	defer cancel()
	if err := s.cfg.Signaler.WaitConnected(waitCtx); err != nil {
		return ErrTimeout
	}

	refreshed := false
	for {
		if err := s.cfg.Signaler.Emit("room:join", map[string]any{"room": roomCode}); err != nil {
			return err
		}
		var reply joinReply
		select {
		case reply = <-joinCh:
		case <-waitCtx.Done():
			return ErrTimeout
		}
		if reply.ok {
			s.completeJoin(reply.payload)
			return nil
		}
		switch reply.errCode {
		case "not_found":
			return ErrRoomNotFound
		case "already_ended":
			return ErrAlreadyEnded
		case "room_full":
			return ErrRoomFull
		case "unauthorized":
			if s.cfg.RefreshCredentials != nil && !refreshed {
				refreshed = true
				if err := s.cfg.RefreshCredentials(ctx); err != nil {
					return ErrUnauthorized
				}
				continue
			}
			return ErrUnauthorized
		default:
			return ErrTimeout
		}
	}
}

func (s *Session) completeJoin(p roomJoined) {
	s.mu.Lock()
	s.state = StateWaiting
	s.sessionID = p.SessionID
	s.isHost = p.IsHost
	s.joinCh = nil
	s.participants = make(map[string]Participant)
	for _, m := range p.Members {
		s.participants[m.ConnID] = m
	}
	parts := s.participantList()
	s.mu.Unlock()
	s.notifyState(StateWaiting)
	s.notifyParticipants(parts)
}

// abortJoin unwinds a failed join so the session is reusable. The media
// handle is released unconditionally.
func (s *Session) abortJoin() {
	s.mu.Lock()
	kick, done := s.pipeKick, s.pipeDone
	s.pipeKick = nil
	s.pipeDone = nil
	if s.media != nil {
		s.media.Close()
		s.media = nil
	}
	s.transcriber = nil
	s.recorder = nil
	s.state = StateIdle
	s.roomCode = ""
	s.joinCh = nil
	s.mu.Unlock()
	if kick != nil {
		close(kick)
		<-done
	}
	s.notifyState(StateIdle)
}

// Leave exits the room and tears everything down: pipelines stop, the
// recording finalizes and uploads, the peer link and media close. The
// session returns to idle and can join again.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	_ = s.cfg.Signaler.Emit("room:leave", nil)
	s.finish(ctx)

	s.mu.Lock()
	s.state = StateIdle
	s.roomCode = ""
	s.sessionID = ""
	s.isHost = false
	s.participants = make(map[string]Participant)
	s.transcript = nil
	s.mu.Unlock()
	s.notifyState(StateIdle)
}

// finish stops the pipelines and releases every resource exactly once.
// Each release runs regardless of earlier failures.
func (s *Session) finish(ctx context.Context) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	kick, done := s.pipeKick, s.pipeDone
	s.pipeKick = nil
	s.pipeDone = nil
	tr := s.transcriber
	rec := s.recorder
	peer := s.peer
	media := s.media
	s.transcriber = nil
	s.recorder = nil
	s.peer = nil
	s.peerTo = ""
	s.media = nil
	s.mu.Unlock()

	// Retire the applier before touching the pipelines so no start can
	// race the teardown.
	if kick != nil {
		close(kick)
		<-done
	}
	if tr != nil {
		tr.Stop()
	}
	if rec != nil {
		if _, err := rec.Finalize(ctx); err != nil {
			s.notice("recording", err.Error())
		}
	}
	if peer != nil {
		peer.Close()
	}
	if media != nil {
		media.Close()
	}
}

// Mute toggles the local mute flag, announces it to the room and
// re-evaluates the pipeline trigger: muting stops transcription and
// pauses recording immediately.
func (s *Session) Mute(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.evaluatePipelines()
	s.mu.Unlock()
	_ = s.cfg.Signaler.Emit("user:mute", map[string]any{"muted": muted})
}

func (s *Session) RequestNotes() {
	_ = s.cfg.Signaler.Emit("notes:request", nil)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

// Transcript returns a copy of the shared log in sequence order.
func (s *Session) Transcript() []TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// RenderSpeaker labels the caller's own utterances "You" and everyone
// else by display name.
func (s *Session) RenderSpeaker(e TranscriptEntry) string {
	if e.SpeakerID == s.cfg.UserID {
		return "You"
	}
	return e.Speaker
}

func (s *Session) Participants() []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantList()
}

func (s *Session) participantList() []Participant {
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	return out
}
