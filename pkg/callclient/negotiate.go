package callclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// LinkState mirrors the peer-connection lifecycle the session machine
// cares about.
type LinkState int

const (
	LinkNew LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnected
	LinkFailed
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNew:
		return "new"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	case LinkFailed:
		return "failed"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether the link cannot recover on its own and must
// be rebuilt from scratch.
func (s LinkState) Terminal() bool {
	return s == LinkFailed || s == LinkClosed
}

// Candidate is a trickled ICE candidate in wire form.
type Candidate = webrtc.ICECandidateInit

// PeerLink is one peer connection. Remote candidates arriving before
// the remote description are buffered, not dropped.
type PeerLink interface {
	Offer(ctx context.Context) (string, error)
	Answer(ctx context.Context, offerSDP string) (string, error)
	AcceptAnswer(sdp string) error
	AddRemoteCandidate(c Candidate) error
	OnLocalCandidate(fn func(Candidate))
	OnStateChange(fn func(LinkState))
	State() LinkState
	Close()
}

// PeerFactory builds a fresh PeerLink. The session machine calls it on
// join and again whenever a link reaches a terminal state.
type PeerFactory func() (PeerLink, error)

// NewPionFactory returns a PeerFactory backed by pion with the given
// ICE servers.
func NewPionFactory(iceServers []webrtc.ICEServer) PeerFactory {
	return func() (PeerLink, error) {
		return newPionLink(webrtc.Configuration{ICEServers: iceServers})
	}
}

type pionLink struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	state     LinkState
	remoteSet bool
	pending   []Candidate
	onCand    func(Candidate)
	onState   func(LinkState)
}

func newPionLink(cfg webrtc.Configuration) (*pionLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	l := &pionLink{pc: pc, state: LinkNew}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		l.mu.Lock()
		fn := l.onCand
		l.mu.Unlock()
		if fn != nil {
			fn(c.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		next := mapPeerState(st)
		l.mu.Lock()
		l.state = next
		fn := l.onState
		l.mu.Unlock()
		if fn != nil {
			fn(next)
		}
	})
	return l, nil
}

func mapPeerState(st webrtc.PeerConnectionState) LinkState {
	switch st {
	case webrtc.PeerConnectionStateNew:
		return LinkNew
	case webrtc.PeerConnectionStateConnecting:
		return LinkConnecting
	case webrtc.PeerConnectionStateConnected:
		return LinkConnected
	case webrtc.PeerConnectionStateDisconnected:
		return LinkDisconnected
	case webrtc.PeerConnectionStateFailed:
		return LinkFailed
	default:
		return LinkClosed
	}
}

func (l *pionLink) Offer(ctx context.Context) (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create offer: %v", ErrNegotiationFailed, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("%w: set local: %v", ErrNegotiationFailed, err)
	}
	return l.pc.LocalDescription().SDP, nil
}

func (l *pionLink) Answer(ctx context.Context, offerSDP string) (string, error) {
	if err := l.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: create answer: %v", ErrNegotiationFailed, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: set local: %v", ErrNegotiationFailed, err)
	}
	return l.pc.LocalDescription().SDP, nil
}

func (l *pionLink) AcceptAnswer(sdp string) error {
	return l.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// setRemote installs the remote description and flushes candidates that
// arrived before it.
func (l *pionLink) setRemote(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote: %v", ErrNegotiationFailed, err)
	}
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("%w: buffered candidate: %v", ErrNegotiationFailed, err)
		}
	}
	return nil
}

func (l *pionLink) AddRemoteCandidate(c Candidate) error {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	if err := l.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("%w: candidate: %v", ErrNegotiationFailed, err)
	}
	return nil
}

func (l *pionLink) OnLocalCandidate(fn func(Candidate)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCand = fn
}

func (l *pionLink) OnStateChange(fn func(LinkState)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onState = fn
}

func (l *pionLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *pionLink) Close() {
	l.pc.Close()
	l.mu.Lock()
	l.state = LinkClosed
	l.mu.Unlock()
}
