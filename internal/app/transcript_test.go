package app

import (
	"context"
	"testing"
	"time"

	"github.com/calldeck/calldeck/internal/domain"
)

func seg(speaker domain.UserID, name, text string, at time.Time) domain.TranscriptSegment {
	return domain.TranscriptSegment{
		SessionID:   "sess-1",
		SpeakerID:   speaker,
		SpeakerName: name,
		Text:        text,
		CapturedAt:  at,
	}
}

func TestSubmitAssignsSequentialOrder(t *testing.T) {
	a := NewAggregator()
	base := time.Now()

	texts := []string{"hello there", "how are you", "fine thanks"}
	for i, txt := range texts {
		got, accepted := a.Submit(context.Background(), seg("u1", "Alice", txt, base.Add(time.Duration(i)*time.Minute)))
		if !accepted {
			t.Fatalf("segment %d rejected", i)
		}
		if got.Seq != i {
			t.Fatalf("seq = %d, want %d", got.Seq, i)
		}
	}

	log := a.Log("sess-1")
	if len(log) != 3 {
		t.Fatalf("log has %d segments, want 3", len(log))
	}
	for i, s := range log {
		if s.Seq != i || s.Text != texts[i] {
			t.Fatalf("log[%d] = {seq %d, %q}, want {seq %d, %q}", i, s.Seq, s.Text, i, texts[i])
		}
	}
}

func TestDuplicateSuppressedWithinWindow(t *testing.T) {
	a := NewAggregator()
	base := time.Now()

	if _, ok := a.Submit(context.Background(), seg("u1", "Alice", "Hello, world!", base)); !ok {
		t.Fatal("original rejected")
	}
	// Same speaker, near-identical text, inside the window: duplicate.
	if _, ok := a.Submit(context.Background(), seg("u1", "Alice", "hello world", base.Add(3*time.Second))); ok {
		t.Fatal("near-identical resubmission accepted")
	}
	// Different speaker, same words: legitimate echo of the phrase.
	if _, ok := a.Submit(context.Background(), seg("u2", "Bob", "hello world", base.Add(3*time.Second))); !ok {
		t.Fatal("same text from different speaker rejected")
	}
	// Same speaker, same words, outside the window: a real repetition.
	if _, ok := a.Submit(context.Background(), seg("u1", "Alice", "hello world", base.Add(30*time.Second))); !ok {
		t.Fatal("repetition outside window rejected")
	}
	if n := len(a.Log("sess-1")); n != 3 {
		t.Fatalf("log has %d segments, want 3", n)
	}
}

func TestDedupWindowIsTunable(t *testing.T) {
	a := NewAggregator(WithDedupWindow(time.Second))
	base := time.Now()

	a.Submit(context.Background(), seg("u1", "Alice", "ping", base))
	if _, ok := a.Submit(context.Background(), seg("u1", "Alice", "ping", base.Add(2*time.Second))); !ok {
		t.Fatal("segment outside the narrowed window rejected")
	}
}

func TestDedupFallsBackToSpeakerName(t *testing.T) {
	a := NewAggregator()
	base := time.Now()

	// No speaker ids: the display name is the only identity available.
	a.Submit(context.Background(), seg("", "Alice", "same words", base))
	if _, ok := a.Submit(context.Background(), seg("", "Alice", "same words", base.Add(time.Second))); ok {
		t.Fatal("name-matched duplicate accepted")
	}
	if _, ok := a.Submit(context.Background(), seg("", "Bob", "same words", base.Add(time.Second))); !ok {
		t.Fatal("different name rejected")
	}
}

func TestNormalizeIsUnicodeAware(t *testing.T) {
	a := NewAggregator()
	base := time.Now()

	a.Submit(context.Background(), seg("u1", "Mia", "Привет, мир!", base))
	if _, ok := a.Submit(context.Background(), seg("u1", "Mia", "привет мир", base.Add(time.Second))); ok {
		t.Fatal("non-latin duplicate not suppressed")
	}
}

func TestDisplayNameRelabelsOwnSegments(t *testing.T) {
	s := seg("u1", "Alice", "hi", time.Now())
	if got := DisplayName("u1", s); got != "You" {
		t.Fatalf("own segment labeled %q, want You", got)
	}
	if got := DisplayName("u2", s); got != "Alice" {
		t.Fatalf("other viewer sees %q, want Alice", got)
	}
	if got := DisplayName("", s); got != "Alice" {
		t.Fatalf("anonymous viewer sees %q, want Alice", got)
	}
}

func TestCloseFlushesTailToStore(t *testing.T) {
	store := newMemStore()
	a := NewAggregator(WithTranscriptStore(store), WithFlushEvery(2))
	base := time.Now()

	a.Submit(context.Background(), seg("u1", "Alice", "one", base))
	a.Submit(context.Background(), seg("u1", "Alice", "two", base.Add(time.Minute)))
	a.Submit(context.Background(), seg("u1", "Alice", "three", base.Add(2*time.Minute)))

	full := a.Close(context.Background(), "sess-1")
	if len(full) != 3 {
		t.Fatalf("close returned %d segments, want 3", len(full))
	}
	store.mu.Lock()
	persisted := len(store.segments)
	store.mu.Unlock()
	if persisted != 3 {
		t.Fatalf("store has %d segments, want 3", persisted)
	}
	if a.Log("sess-1") != nil {
		t.Fatal("log survived close")
	}
}
