package callclient

import (
	"context"
	"encoding/json"
	"time"
)

func (s *Session) onChannelReady(data json.RawMessage) {
	var p struct {
		ConnID string `json:"conn_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	s.connID = p.ConnID
	rejoin := s.roomCode != "" && s.joinCh == nil && s.state != StateIdle && s.state != StateEnded
	room := s.roomCode
	s.mu.Unlock()

	// A ready frame while mid-call means the transport reconnected
	// under a fresh connection id; membership must be re-established.
	// The remaining peer sees user:left then user:joined and re-offers.
	if rejoin {
		_ = s.cfg.Signaler.Emit("room:join", map[string]any{"room": room})
	}
}

func (s *Session) onRoomJoined(data json.RawMessage) {
	var p roomJoined
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	joinCh := s.joinCh
	s.mu.Unlock()
	if joinCh != nil {
		joinCh <- joinReply{ok: true, payload: p}
		return
	}

	// Rejoin after a transport drop: refresh membership, drop the stale
	// peer link and fall back to waiting until the re-offer lands.
	s.mu.Lock()
	s.sessionID = p.SessionID
	s.isHost = p.IsHost
	s.participants = make(map[string]Participant)
	for _, m := range p.Members {
		s.participants[m.ConnID] = m
	}
	if s.peer != nil {
		s.peer.Close()
		s.peer = nil
		s.peerTo = ""
	}
	if s.state == StateActive {
		s.state = StateWaiting
	}
	s.evaluatePipelines()
	parts := s.participantList()
	st := s.state
	s.mu.Unlock()
	s.notifyState(st)
	s.notifyParticipants(parts)
}

// onUserJoined fires when a remote participant enters. The member who
// was already in the room makes the offer, so offerer roles never
// collide.
func (s *Session) onUserJoined(data json.RawMessage) {
	var p struct {
		ConnID string `json:"conn_id"`
		User   struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
		Muted bool `json:"muted"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.ConnID == "" {
		return
	}

	s.mu.Lock()
	if p.ConnID == s.connID {
		s.mu.Unlock()
		return
	}
	s.participants[p.ConnID] = Participant{
		ConnID: p.ConnID,
		UserID: p.User.ID,
		Name:   p.User.Name,
		Muted:  p.Muted,
	}
	parts := s.participantList()
	err := s.buildPeer(p.ConnID, true)
	s.mu.Unlock()
	s.notifyParticipants(parts)
	if err != nil {
		s.notice("negotiation", err.Error())
		return
	}
	s.sendOffer()
}

func (s *Session) onUserLeft(data json.RawMessage) {
	var p struct {
		ConnID string `json:"conn_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	delete(s.participants, p.ConnID)
	var peerGone bool
	if s.peerTo == p.ConnID && s.peer != nil {
		s.peer.Close()
		s.peer = nil
		s.peerTo = ""
		peerGone = true
	}
	if peerGone && s.state == StateActive {
		s.state = StateWaiting
	}
	s.evaluatePipelines()
	parts := s.participantList()
	st := s.state
	s.mu.Unlock()
	s.notifyParticipants(parts)
	if peerGone {
		s.notifyState(st)
	}
}

func (s *Session) onUserMuted(data json.RawMessage) {
	var p struct {
		ConnID string `json:"conn_id"`
		Muted  bool   `json:"muted"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	if m, ok := s.participants[p.ConnID]; ok {
		m.Muted = p.Muted
		s.participants[p.ConnID] = m
	}
	parts := s.participantList()
	s.mu.Unlock()
	s.notifyParticipants(parts)
}

// onOffer answers an incoming offer on a fresh peer link. Any previous
// link to the same peer is superseded: a re-offer after a failure or
// reconnect always starts clean.
func (s *Session) onOffer(data json.RawMessage) {
	var p struct {
		From string `json:"from"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.From == "" {
		return
	}

	s.mu.Lock()
	if err := s.buildPeer(p.From, false); err != nil {
		s.mu.Unlock()
		s.notice("negotiation", err.Error())
		return
	}
	peer := s.peer
	s.mu.Unlock()

	answer, err := peer.Answer(context.Background(), p.SDP)
	if err != nil {
		s.notice("negotiation", err.Error())
		return
	}
	_ = s.cfg.Signaler.Emit("signal:answer", map[string]any{
		"to":  p.From,
		"sdp": answer,
	})
}

func (s *Session) onAnswer(data json.RawMessage) {
	var p struct {
		From string `json:"from"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	peer := s.peer
	to := s.peerTo
	s.mu.Unlock()
	if peer == nil || to != p.From {
		return
	}
	if err := peer.AcceptAnswer(p.SDP); err != nil {
		s.notice("negotiation", err.Error())
	}
}

func (s *Session) onCandidate(data json.RawMessage) {
	var p struct {
		From      string    `json:"from"`
		Candidate Candidate `json:"candidate"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	peer := s.peer
	to := s.peerTo
	s.mu.Unlock()
	if peer == nil || to != p.From {
		return
	}
	if err := peer.AddRemoteCandidate(p.Candidate); err != nil {
		s.notice("negotiation", err.Error())
	}
}

func (s *Session) onCallStarted(data json.RawMessage) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	if p.SessionID != "" {
		s.sessionID = p.SessionID
	}
	s.mu.Unlock()
}

func (s *Session) onCallEnded(data json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.finish(ctx)

	s.mu.Lock()
	s.state = StateEnded
	s.mu.Unlock()
	s.notifyState(StateEnded)
}

func (s *Session) onTranscriptChunk(data json.RawMessage) {
	var p struct {
		Segment TranscriptEntry `json:"segment"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Segment.Text == "" {
		return
	}
	s.mu.Lock()
	s.transcript = append(s.transcript, p.Segment)
	s.mu.Unlock()
	if s.cfg.OnTranscript != nil {
		s.cfg.OnTranscript(p.Segment)
	}
}

func (s *Session) onServerError(data json.RawMessage) {
	var p struct {
		Code    string `json:"code"`
		Message string `json:"error"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.mu.Lock()
	joinCh := s.joinCh
	s.mu.Unlock()
	switch p.Code {
	case "not_found", "already_ended", "room_full", "unauthorized", "rate_limited", "join_failed", "not_bound":
		if joinCh != nil {
			joinCh <- joinReply{errCode: p.Code}
			return
		}
	}
	s.notice(p.Code, p.Message)
}

// buildPeer replaces the current peer link with a fresh one wired for
// trickle candidates and state tracking. Caller holds s.mu.
func (s *Session) buildPeer(to string, offerer bool) error {
	if s.peer != nil {
		s.peer.Close()
	}
	peer, err := s.cfg.NewPeer()
	if err != nil {
		return err
	}
	s.peer = peer
	s.peerTo = to
	s.offerer = offerer
	peer.OnLocalCandidate(func(c Candidate) {
		_ = s.cfg.Signaler.Emit("signal:candidate", map[string]any{
			"to":        to,
			"candidate": c,
		})
	})
	peer.OnStateChange(func(st LinkState) {
		s.onPeerState(peer, st)
	})
	return nil
}

// sendOffer creates and emits an offer on the current peer link.
func (s *Session) sendOffer() {
	s.mu.Lock()
	peer := s.peer
	to := s.peerTo
	s.mu.Unlock()
	if peer == nil {
		return
	}
	offer, err := peer.Offer(context.Background())
	if err != nil {
		s.notice("negotiation", err.Error())
		return
	}
	_ = s.cfg.Signaler.Emit("signal:offer", map[string]any{
		"to":  to,
		"sdp": offer,
	})
}

// onPeerState drives the waiting/active transition and the pipeline
// trigger. A terminal failure on the offering side rebuilds the link
// and re-offers, bounded by the retry budget; the answering side waits
// for the peer's re-offer.
func (s *Session) onPeerState(peer PeerLink, st LinkState) {
	s.mu.Lock()
	if s.peer != peer {
		s.mu.Unlock()
		return
	}

	var retry bool
	var to string
	switch st {
	case LinkConnected:
		s.peerAttempts = 0
		if s.state == StateWaiting {
			s.state = StateActive
		}
	case LinkFailed:
		if s.offerer && s.peerAttempts < s.cfg.NegotiationRetries {
			s.peerAttempts++
			retry = true
			to = s.peerTo
		}
	}
	s.evaluatePipelines()
	state := s.state
	s.mu.Unlock()

	s.notifyState(state)
	if st == LinkFailed && !retry {
		s.notice("negotiation", ErrNegotiationFailed.Error())
	}
	if retry {
		s.mu.Lock()
		err := s.buildPeer(to, true)
		s.mu.Unlock()
		if err != nil {
			s.notice("negotiation", err.Error())
			return
		}
		s.sendOffer()
	}
}

// evaluatePipelines records the trigger-conjunction decision: peer
// link connected, transport up, caller not muted, call active. The
// applier goroutine reconciles the pipelines to the latest decision.
// Caller holds s.mu.
func (s *Session) evaluatePipelines() {
	s.pipeWant = s.peer != nil &&
		s.peer.State() == LinkConnected &&
		s.cfg.Signaler.Connected() &&
		!s.muted &&
		s.state == StateActive
	if s.pipeKick == nil {
		return
	}
	select {
	case s.pipeKick <- struct{}{}:
	default:
	}
}

// applyPipelines is the single goroutine that starts and stops the
// capture pipelines. It re-reads the desired state after every
// transition, so a decision superseded by a later event is never
// applied. transcriber.Stop blocks on its supervisor, which is why
// this cannot run under s.mu.
func (s *Session) applyPipelines(kick <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	running := false
	for range kick {
		for {
			s.mu.Lock()
			want := s.pipeWant
			tr := s.transcriber
			rec := s.recorder
			sessionID := s.sessionID
			s.mu.Unlock()
			if want == running || (tr == nil && rec == nil) {
				break
			}
			if want {
				if tr != nil {
					tr.Start()
				}
				if rec != nil {
					if err := rec.Start(sessionID); err != nil {
						s.notice("recording", err.Error())
					}
				}
			} else {
				if tr != nil {
					tr.Stop()
				}
				if rec != nil {
					rec.Pause()
				}
			}
			running = want
		}
	}
}

// publishUtterance sends one finalized local utterance to the room.
// Interim hypotheses never leave the client.
func (s *Session) publishUtterance(text string, at time.Time) {
	if text == "" {
		return
	}
	_ = s.cfg.Signaler.Emit("transcript:manual", map[string]any{
		"text":        text,
		"captured_at": at,
	})
}

func (s *Session) onRecognition(ev RecognitionEvent) {
	if !ev.Final && s.cfg.OnInterim != nil {
		s.cfg.OnInterim(ev.Text)
	}
}

func (s *Session) onRecognizerDown(err error) {
	s.notice("transcription", err.Error())
}

func (s *Session) notifyState(st State) {
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

func (s *Session) notifyParticipants(parts []Participant) {
	if s.cfg.OnParticipants != nil {
		s.cfg.OnParticipants(parts)
	}
}

func (s *Session) notice(code, message string) {
	if s.cfg.OnNotice != nil {
		s.cfg.OnNotice(code, message)
	}
}
