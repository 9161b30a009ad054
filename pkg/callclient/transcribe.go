package callclient

import (
	"context"
	"sync"
	"time"
)

// RecognitionEvent is one hypothesis from the speech recognizer.
// Interim events refine the current utterance and stay local; final
// events are published to the room.
type RecognitionEvent struct {
	Text  string
	Final bool
	At    time.Time
}

// Recognizer is the platform speech-recognition capability. Start
// returns a channel that closes when recognition stops for any reason;
// the supervisor treats an unexpected close as a crash and restarts.
type Recognizer interface {
	Start(ctx context.Context) (<-chan RecognitionEvent, error)
	Stop()
}

// RecognizerFactory builds a Recognizer, or fails with
// ErrRecognitionUnavailable when the platform has none.
type RecognizerFactory func() (Recognizer, error)

// transcriber supervises a Recognizer: it restarts crashed instances
// with backoff and gives up after the restart budget so a dead device
// is reported instead of silently retried forever.
type transcriber struct {
	factory RecognizerFactory
	backoff Backoff
	onFinal func(text string, at time.Time)
	onEvent func(ev RecognitionEvent)
	onErr   func(err error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	current Recognizer
	done    chan struct{}
}

func newTranscriber(factory RecognizerFactory, backoff Backoff) *transcriber {
	return &transcriber{factory: factory, backoff: backoff}
}

// Start is idempotent; a running supervisor is left alone.
func (t *transcriber) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.factory == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.running = true
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.supervise(ctx, t.done)
}

// Stop halts recognition and waits for the supervisor to exit. Safe to
// call when not running.
func (t *transcriber) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.cancel
	current := t.current
	done := t.done
	t.mu.Unlock()

	cancel()
	if current != nil {
		current.Stop()
	}
	<-done
}

func (t *transcriber) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		rec, err := t.factory()
		if err != nil {
			t.fail(err)
			return
		}
		events, err := rec.Start(ctx)
		if err != nil {
			t.fail(err)
			return
		}

		t.mu.Lock()
		t.current = rec
		t.mu.Unlock()

		start := time.Now()
	consume:
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					break consume
				}
				if ev.Final && t.onFinal != nil {
					t.onFinal(ev.Text, ev.At)
				}
				if t.onEvent != nil {
					t.onEvent(ev)
				}
			case <-ctx.Done():
				break consume
			}
		}
		rec.Stop()

		t.mu.Lock()
		t.current = nil
		t.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		// A run that survived past the backoff ceiling counts as
		// healthy; the crash budget starts over.
		if time.Since(start) > t.backoff.Max {
			attempt = -1
		}
		if t.backoff.Exhausted(attempt + 1) {
			t.fail(ErrRecognitionUnavailable)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.backoff.Delay(attempt)):
		}
	}
}

func (t *transcriber) fail(err error) {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	if t.onErr != nil {
		t.onErr(err)
	}
}
