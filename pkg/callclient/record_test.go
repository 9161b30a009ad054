package callclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeCapture struct {
	mu      sync.Mutex
	ch      chan []byte
	stopped int
}

func (c *fakeCapture) Start(ctx context.Context, interval time.Duration) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ch = make(chan []byte, 16)
	return c.ch, nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		close(c.ch)
		c.ch = nil
	}
	c.stopped++
}

func (c *fakeCapture) push(t *testing.T, data string) {
	t.Helper()
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		t.Fatal("push while capture stopped")
	}
	ch <- []byte(data)
}

func (c *fakeCapture) capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil
}

func (c *fakeCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

type fakeUploader struct {
	mu       sync.Mutex
	uploads  []string
	sessions []string
	err      error
}

func (u *fakeUploader) Upload(_ context.Context, sessionID string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	u.uploads = append(u.uploads, string(data))
	u.sessions = append(u.sessions, sessionID)
	return "file:///" + sessionID, nil
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.uploads)
}

func TestRecorderAssemblesChunksInOrder(t *testing.T) {
	capture := &fakeCapture{}
	uploader := &fakeUploader{}
	rec := NewRecorder(capture, uploader, time.Millisecond)

	if err := rec.Start("sess-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	capture.push(t, "aa")
	capture.push(t, "bb")
	capture.push(t, "cc")

	url, err := rec.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if url != "file:///sess-1" {
		t.Fatalf("url = %q", url)
	}
	if uploader.count() != 1 || uploader.uploads[0] != "aabbcc" {
		t.Fatalf("uploaded %v, want one artifact aabbcc", uploader.uploads)
	}
	if uploader.sessions[0] != "sess-1" {
		t.Fatalf("session = %q", uploader.sessions[0])
	}
}

func TestRecorderZeroChunksIsNoop(t *testing.T) {
	capture := &fakeCapture{}
	uploader := &fakeUploader{}
	rec := NewRecorder(capture, uploader, time.Millisecond)

	if err := rec.Start("sess-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	url, err := rec.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if url != "" || uploader.count() != 0 {
		t.Fatalf("expected no upload, got url=%q count=%d", url, uploader.count())
	}
	if capture.stopCount() == 0 {
		t.Fatal("capture handle not released")
	}
}

func TestRecorderPauseKeepsChunks(t *testing.T) {
	capture := &fakeCapture{}
	uploader := &fakeUploader{}
	rec := NewRecorder(capture, uploader, time.Millisecond)

	rec.Start("sess-1")
	capture.push(t, "first")
	rec.Pause()
	if uploader.count() != 0 {
		t.Fatal("pause must not upload")
	}

	rec.Start("sess-1")
	capture.push(t, "second")

	if _, err := rec.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if uploader.count() != 1 || uploader.uploads[0] != "firstsecond" {
		t.Fatalf("uploaded %v, want firstsecond", uploader.uploads)
	}
}

func TestRecorderUploadFailureReleasesCapture(t *testing.T) {
	capture := &fakeCapture{}
	uploader := &fakeUploader{err: errors.New("disk on fire")}
	rec := NewRecorder(capture, uploader, time.Millisecond)

	rec.Start("sess-1")
	capture.push(t, "data")

	_, err := rec.Finalize(context.Background())
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("err = %v, want ErrUploadFailed", err)
	}
	if capture.stopCount() == 0 {
		t.Fatal("capture handle not released on failure")
	}
}

func TestRecorderFinalizeIdempotent(t *testing.T) {
	capture := &fakeCapture{}
	uploader := &fakeUploader{}
	rec := NewRecorder(capture, uploader, time.Millisecond)

	rec.Start("sess-1")
	capture.push(t, "x")
	if _, err := rec.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := rec.Finalize(context.Background()); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if uploader.count() != 1 {
		t.Fatalf("uploaded %d times, want 1", uploader.count())
	}
	if err := rec.Start("sess-1"); err != nil {
		t.Fatalf("start after finalize: %v", err)
	}
	if capture.stopCount() != 1 {
		t.Fatal("finalized recorder restarted capture")
	}
}
