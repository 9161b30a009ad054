package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("buffer full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type fixture struct {
	orch *Orchestrator
}

func newFixture(policy app.Policy) *fixture {
	o := &Orchestrator{
		Registry:    app.NewRegistry(),
		Rooms:       app.NewRoomRegistry(),
		Transcripts: app.NewAggregator(),
		Policy:      policy,
	}
	o.Relay = app.NewRelay(o.Rooms)
	return &fixture{orch: o}
}

// connect binds a fresh connection for a named user, mirroring what the
// websocket adapter does on upgrade.
func (f *fixture) connect(t *testing.T, cid core.ConnID, name string) (*domain.User, *fakeConn) {
	t.Helper()
	u, err := domain.NewUser(name)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	conn := &fakeConn{}
	sess := core.NewMemberSession(domain.NewParticipant(u)).UpdateSignal(conn)
	_, cancel := context.WithCancel(context.Background())
	f.orch.Registry.BindSignal(cid, sess, cancel)
	return u, conn
}

func (f *fixture) createRoom(t *testing.T, host *domain.User) *domain.Room {
	t.Helper()
	room, err := f.orch.Rooms.CreateRoom(context.Background(), host, false)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func TestSecondJoinStartsCall(t *testing.T) {
	f := newFixture(app.DropPolicy{})
	host, _ := f.connect(t, "c-host", "alice")
	guest, _ := f.connect(t, "c-guest", "bob")
	room := f.createRoom(t, host)

	out, err := f.orch.Join(context.Background(), "c-host", room.Code, host)
	if err != nil {
		t.Fatalf("host join: %v", err)
	}
	if out.CallStarted {
		t.Fatal("call started with a single member")
	}
	if out.Status != domain.CallStatusWaiting {
		t.Fatalf("status %q, want waiting", out.Status)
	}

	out, err = f.orch.Join(context.Background(), "c-guest", room.Code, guest)
	if err != nil {
		t.Fatalf("guest join: %v", err)
	}
	if !out.CallStarted {
		t.Fatal("second join did not start the call")
	}
	svc, _ := f.orch.Rooms.Get(room.Code)
	if svc.Status() != domain.CallStatusActive {
		t.Fatalf("status %q, want active", svc.Status())
	}
}

func TestJoinMovesConnectionBetweenRooms(t *testing.T) {
	f := newFixture(app.DropPolicy{})
	host, _ := f.connect(t, "c1", "alice")
	first := f.createRoom(t, host)
	second := f.createRoom(t, host)

	if _, err := f.orch.Join(context.Background(), "c1", first.Code, host); err != nil {
		t.Fatalf("join first: %v", err)
	}
	if _, err := f.orch.Join(context.Background(), "c1", second.Code, host); err != nil {
		t.Fatalf("join second: %v", err)
	}

	firstSvc, _ := f.orch.Rooms.Get(first.Code)
	if firstSvc.MemberCount() != 0 {
		t.Fatalf("first room still has %d members", firstSvc.MemberCount())
	}
	code, _, ok := f.orch.Registry.RoomOf("c1")
	if !ok || code != second.Code {
		t.Fatalf("registry room = %q, want %q", code, second.Code)
	}
}

func TestRelaySignalScopedToRoom(t *testing.T) {
	f := newFixture(app.DropPolicy{})
	host, _ := f.connect(t, "c-host", "alice")
	guest, guestConn := f.connect(t, "c-guest", "bob")
	outsider, outsiderConn := f.connect(t, "c-out", "mallory")
	room := f.createRoom(t, host)
	other := f.createRoom(t, outsider)

	f.orch.Join(context.Background(), "c-host", room.Code, host)
	f.orch.Join(context.Background(), "c-guest", room.Code, guest)
	f.orch.Join(context.Background(), "c-out", other.Code, outsider)

	if !f.orch.RelaySignal("c-host", "c-guest", core.Frame(`{"sdp":"x"}`)) {
		t.Fatal("relay within room failed")
	}
	if guestConn.count() != 1 {
		t.Fatalf("guest got %d frames, want 1", guestConn.count())
	}
	if f.orch.RelaySignal("c-host", "c-out", core.Frame(`{"sdp":"x"}`)) {
		t.Fatal("relay crossed room boundary")
	}
	if outsiderConn.count() != 0 {
		t.Fatalf("outsider got %d frames", outsiderConn.count())
	}
}

func TestDisconnectRemovesMembershipAndBinding(t *testing.T) {
	f := newFixture(app.DropPolicy{})
	host, _ := f.connect(t, "c-host", "alice")
	guest, _ := f.connect(t, "c-guest", "bob")
	room := f.createRoom(t, host)
	f.orch.Join(context.Background(), "c-host", room.Code, host)
	f.orch.Join(context.Background(), "c-guest", room.Code, guest)

	code, svc, ok := f.orch.Disconnect("c-guest")
	if !ok || code != room.Code {
		t.Fatalf("disconnect = (%q, %v)", code, ok)
	}
	if svc.MemberCount() != 1 {
		t.Fatalf("members = %d, want 1", svc.MemberCount())
	}
	if _, ok := f.orch.Registry.GetSession("c-guest"); ok {
		t.Fatal("connection still bound after disconnect")
	}
}

func TestCloseIsHostOnlyAndFlushes(t *testing.T) {
	f := newFixture(app.DropPolicy{})
	host, _ := f.connect(t, "c-host", "alice")
	guest, _ := f.connect(t, "c-guest", "bob")
	room := f.createRoom(t, host)
	f.orch.Join(context.Background(), "c-host", room.Code, host)
	f.orch.Join(context.Background(), "c-guest", room.Code, guest)

	if _, _, ok := f.orch.SubmitTranscript(context.Background(), "c-host", "closing words", time.Now()); !ok {
		t.Fatal("transcript submission rejected")
	}

	if _, _, err := f.orch.Close(context.Background(), room.Code, guest.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("guest close err = %v, want ErrForbidden", err)
	}

	duration, svc, err := f.orch.Close(context.Background(), room.Code, host.ID)
	if err != nil {
		t.Fatalf("host close: %v", err)
	}
	if duration < 0 {
		t.Fatalf("negative duration %d", duration)
	}
	if svc == nil {
		t.Fatal("close returned no room for broadcast")
	}
	if _, _, ok := f.orch.Registry.RoomOf("c-host"); ok {
		t.Fatal("host binding survived close")
	}
	if f.orch.Transcripts.Log(room.SessionID) != nil {
		t.Fatal("transcript log survived close")
	}
}

func TestSubmitTranscriptAttributesSender(t *testing.T) {
	f := newFixture(app.DropPolicy{})
	host, _ := f.connect(t, "c-host", "alice")
	room := f.createRoom(t, host)
	f.orch.Join(context.Background(), "c-host", room.Code, host)

	at := time.Now()
	seg, svc, ok := f.orch.SubmitTranscript(context.Background(), "c-host", "hello", at)
	if !ok {
		t.Fatal("submission rejected")
	}
	if seg.SpeakerID != host.ID || seg.SpeakerName != host.DisplayName {
		t.Fatalf("speaker = (%s, %s), want (%s, %s)", seg.SpeakerID, seg.SpeakerName, host.ID, host.DisplayName)
	}
	if seg.SessionID != room.SessionID {
		t.Fatalf("session %q, want %q", seg.SessionID, room.SessionID)
	}
	if svc == nil {
		t.Fatal("no room returned for fan-out")
	}

	if _, _, ok := f.orch.SubmitTranscript(context.Background(), "c-unknown", "x", at); ok {
		t.Fatal("submission from unbound connection accepted")
	}
}

func TestStrictPolicyKicksBackpressuredMember(t *testing.T) {
	f := newFixture(app.StrictPolicy{})
	host, _ := f.connect(t, "c-host", "alice")
	guest, guestConn := f.connect(t, "c-guest", "bob")
	room := f.createRoom(t, host)
	f.orch.Join(context.Background(), "c-host", room.Code, host)
	f.orch.Join(context.Background(), "c-guest", room.Code, guest)

	guestConn.fail = true
	svc, _ := f.orch.Rooms.Get(room.Code)
	f.orch.BroadcastFrame(svc, "c-host", core.Frame(`{"type":"user:muted"}`))

	if svc.MemberCount() != 1 {
		t.Fatalf("members = %d, want 1 after kick", svc.MemberCount())
	}
	if _, ok := svc.Member("c-guest"); ok {
		t.Fatal("backpressured member still present")
	}
}

func TestDropPolicyKeepsBackpressuredMember(t *testing.T) {
	f := newFixture(app.DropPolicy{})
	host, _ := f.connect(t, "c-host", "alice")
	guest, guestConn := f.connect(t, "c-guest", "bob")
	room := f.createRoom(t, host)
	f.orch.Join(context.Background(), "c-host", room.Code, host)
	f.orch.Join(context.Background(), "c-guest", room.Code, guest)

	guestConn.fail = true
	svc, _ := f.orch.Rooms.Get(room.Code)
	f.orch.BroadcastFrame(svc, "c-host", core.Frame(`{"type":"user:muted"}`))

	if svc.MemberCount() != 2 {
		t.Fatalf("members = %d, want 2", svc.MemberCount())
	}
}
