package callclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedRecognizer struct {
	mu      sync.Mutex
	ch      chan RecognitionEvent
	stopped bool
}

func newScriptedRecognizer() *scriptedRecognizer {
	return &scriptedRecognizer{ch: make(chan RecognitionEvent, 16)}
}

func (r *scriptedRecognizer) Start(ctx context.Context) (<-chan RecognitionEvent, error) {
	return r.ch, nil
}

func (r *scriptedRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.ch)
	}
}

func (r *scriptedRecognizer) emit(ev RecognitionEvent) { r.ch <- ev }

// crash simulates the platform recognizer dying on its own.
func (r *scriptedRecognizer) crash() { r.Stop() }

type eventSink struct {
	mu     sync.Mutex
	finals []string
	all    []RecognitionEvent
	errs   []error
}

func (s *eventSink) onFinal(text string, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, text)
}

func (s *eventSink) onEvent(ev RecognitionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, ev)
}

func (s *eventSink) onErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *eventSink) finalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finals)
}

func (s *eventSink) errCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTranscriberForwardsFinalsOnly(t *testing.T) {
	rec := newScriptedRecognizer()
	sink := &eventSink{}
	tr := newTranscriber(func() (Recognizer, error) { return rec, nil }, RestartBackoff())
	tr.onFinal = sink.onFinal
	tr.onEvent = sink.onEvent

	tr.Start()
	rec.emit(RecognitionEvent{Text: "hel", Final: false, At: time.Now()})
	rec.emit(RecognitionEvent{Text: "hello world", Final: true, At: time.Now()})

	waitFor(t, func() bool { return sink.finalCount() == 1 }, "final never forwarded")
	sink.mu.Lock()
	if sink.finals[0] != "hello world" {
		t.Fatalf("final = %q", sink.finals[0])
	}
	if len(sink.all) != 2 {
		t.Fatalf("saw %d events, want 2", len(sink.all))
	}
	sink.mu.Unlock()
	tr.Stop()
}

func TestTranscriberRestartsAfterCrash(t *testing.T) {
	var mu sync.Mutex
	var built []*scriptedRecognizer
	factory := func() (Recognizer, error) {
		mu.Lock()
		defer mu.Unlock()
		r := newScriptedRecognizer()
		built = append(built, r)
		return r, nil
	}

	sink := &eventSink{}
	tr := newTranscriber(factory, Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond, MaxAttempts: 5})
	tr.onFinal = sink.onFinal
	tr.Start()

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(built) >= 1 }, "first recognizer never built")
	mu.Lock()
	first := built[0]
	mu.Unlock()
	first.crash()

	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(built) >= 2 }, "no restart after crash")
	mu.Lock()
	second := built[1]
	mu.Unlock()
	second.emit(RecognitionEvent{Text: "back online", Final: true, At: time.Now()})

	waitFor(t, func() bool { return sink.finalCount() == 1 }, "restarted recognizer not delivering")
	tr.Stop()
}

func TestTranscriberGivesUpAfterBudget(t *testing.T) {
	var mu sync.Mutex
	builds := 0
	factory := func() (Recognizer, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		r := newScriptedRecognizer()
		r.crash() // dies immediately, every time
		return r, nil
	}

	sink := &eventSink{}
	tr := newTranscriber(factory, Backoff{Base: time.Millisecond, Max: time.Minute, MaxAttempts: 3})
	tr.onErr = sink.onErr
	tr.Start()

	waitFor(t, func() bool { return sink.errCount() == 1 }, "exhausted budget never reported")
	sink.mu.Lock()
	if !errors.Is(sink.errs[0], ErrRecognitionUnavailable) {
		t.Fatalf("err = %v, want ErrRecognitionUnavailable", sink.errs[0])
	}
	sink.mu.Unlock()
	mu.Lock()
	if builds > 4 {
		t.Fatalf("factory called %d times, budget ignored", builds)
	}
	mu.Unlock()
	tr.Stop()
}

func TestTranscriberUnavailableFactory(t *testing.T) {
	sink := &eventSink{}
	tr := newTranscriber(func() (Recognizer, error) { return nil, ErrRecognitionUnavailable }, RestartBackoff())
	tr.onErr = sink.onErr
	tr.Start()

	waitFor(t, func() bool { return sink.errCount() == 1 }, "factory failure never reported")
	tr.Stop()
}

func TestTranscriberStopIdempotent(t *testing.T) {
	rec := newScriptedRecognizer()
	tr := newTranscriber(func() (Recognizer, error) { return rec, nil }, RestartBackoff())
	tr.Start()
	tr.Stop()
	tr.Stop()

	// A stopped supervisor can start fresh.
	tr2 := newTranscriber(func() (Recognizer, error) { return newScriptedRecognizer(), nil }, RestartBackoff())
	tr2.Stop()
	tr2.Start()
	tr2.Stop()
}
