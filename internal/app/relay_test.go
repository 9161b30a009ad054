package app

import (
	"context"
	"testing"

	"github.com/calldeck/calldeck/internal/core"
)

func relayFixture(t *testing.T) (*Relay, core.RoomService, *stubConn, *stubConn) {
	t.Helper()
	rooms := NewRoomRegistry()
	host, hostSess, hostConn := newMember("alice")
	guest, guestSess, guestConn := newMember("bob")

	room, err := rooms.CreateRoom(context.Background(), host, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := rooms.Join(context.Background(), room.Code, host, "host-conn", hostSess); err != nil {
		t.Fatalf("host join: %v", err)
	}
	if _, err := rooms.Join(context.Background(), room.Code, guest, "guest-conn", guestSess); err != nil {
		t.Fatalf("guest join: %v", err)
	}
	svc, _ := rooms.Get(room.Code)
	return NewRelay(rooms), svc, hostConn, guestConn
}

func TestRelayForwardsOpaquePayload(t *testing.T) {
	relay, svc, _, guestConn := relayFixture(t)
	code := svc.Snapshot().Code

	// The relay must not care what the payload looks like.
	frame := core.Frame(`{"type":"signal:offer","from":"host-conn","sdp":"v=0 garbage"}`)
	if !relay.Forward(code, "host-conn", "guest-conn", frame) {
		t.Fatal("forward between members failed")
	}
	if guestConn.count() != 1 {
		t.Fatalf("guest received %d frames, want 1", guestConn.count())
	}
	if string(guestConn.frames[0]) != string(frame) {
		t.Fatalf("payload mutated in transit: %s", guestConn.frames[0])
	}
}

func TestRelayDropsUnknownTarget(t *testing.T) {
	relay, svc, hostConn, _ := relayFixture(t)
	code := svc.Snapshot().Code

	if relay.Forward(code, "host-conn", "ghost-conn", core.Frame(`{}`)) {
		t.Fatal("forward to non-member should drop")
	}
	if relay.Forward(code, "ghost-conn", "guest-conn", core.Frame(`{}`)) {
		t.Fatal("forward from non-member should drop")
	}
	if relay.Forward("NOSUCH", "host-conn", "guest-conn", core.Frame(`{}`)) {
		t.Fatal("forward in unknown room should drop")
	}
	if hostConn.count() != 0 {
		t.Fatalf("sender received %d frames, want 0", hostConn.count())
	}
}

func TestRelayDropsAfterTargetLeft(t *testing.T) {
	relay, svc, _, guestConn := relayFixture(t)
	code := svc.Snapshot().Code

	svc.RemoveMember("guest-conn")
	if relay.Forward(code, "host-conn", "guest-conn", core.Frame(`{}`)) {
		t.Fatal("forward to departed member should drop")
	}
	if guestConn.count() != 0 {
		t.Fatalf("departed member received %d frames", guestConn.count())
	}
}
