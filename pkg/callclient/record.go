package callclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// DefaultChunkInterval is how often the capture source emits a chunk.
// Short intervals bound data loss when a call dies mid-recording.
const DefaultChunkInterval = time.Second

// CaptureSource is the platform recording capability. Start emits
// encoded media chunks on the returned channel until Stop; the channel
// closes when capture ends.
type CaptureSource interface {
	Start(ctx context.Context, interval time.Duration) (<-chan []byte, error)
	Stop()
}

// Uploader delivers the finished artifact to durable storage.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, data []byte) (url string, err error)
}

// Recorder accumulates capture chunks in order and uploads a single
// assembled artifact when the session finalizes. Losing the recording
// trigger mid-call pauses capture but keeps the chunks; only Finalize
// assembles and uploads.
type Recorder struct {
	source   CaptureSource
	uploader Uploader
	interval time.Duration

	mu        sync.Mutex
	capturing bool
	finalized bool
	cancel    context.CancelFunc
	done      chan struct{}
	chunks    [][]byte
	sessionID string
}

func NewRecorder(source CaptureSource, uploader Uploader, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultChunkInterval
	}
	return &Recorder{source: source, uploader: uploader, interval: interval}
}

// Start begins capture for the session. Idempotent while capturing.
func (r *Recorder) Start(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source == nil || r.capturing || r.finalized {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	chunks, err := r.source.Start(ctx, r.interval)
	if err != nil {
		cancel()
		return err
	}
	r.capturing = true
	r.sessionID = sessionID
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.collect(chunks, r.done)
	return nil
}

func (r *Recorder) collect(chunks <-chan []byte, done chan struct{}) {
	defer close(done)
	for chunk := range chunks {
		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.mu.Unlock()
	}
}

// Pause releases the capture handle but keeps accumulated chunks so the
// recording can resume when the trigger conditions return. Safe to call
// when not capturing.
func (r *Recorder) Pause() {
	r.mu.Lock()
	if !r.capturing {
		r.mu.Unlock()
		return
	}
	r.capturing = false
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	r.source.Stop()
	<-done
}

// Finalize stops capture, assembles the chunks into one artifact and
// uploads it. The capture handle is released even when the upload
// fails. With zero chunks nothing is uploaded. Calling it again is a
// no-op.
func (r *Recorder) Finalize(ctx context.Context) (string, error) {
	r.Pause()

	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return "", nil
	}
	r.finalized = true
	chunks := r.chunks
	sessionID := r.sessionID
	r.chunks = nil
	r.mu.Unlock()

	if len(chunks) == 0 || r.uploader == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for _, chunk := range chunks {
		buf.Write(chunk)
	}
	url, err := r.uploader.Upload(ctx, sessionID, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return url, nil
}

// HTTPUploader posts the artifact to the server's recording endpoint as
// multipart form data.
type HTTPUploader struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (u *HTTPUploader) Upload(ctx context.Context, sessionID string, data []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("recording", sessionID+".webm")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/api/sessions/%s/recording", u.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+u.Token)

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload rejected: %s", resp.Status)
	}
	var out struct {
		URL string `json:"url"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}
