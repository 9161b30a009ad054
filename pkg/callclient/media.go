package callclient

import "context"

// MediaStream is the opaque handle to captured local media. The
// platform capture primitive owns the hardware; Close releases it.
type MediaStream interface {
	Close()
}

// MediaProvider is the platform capability that acquires camera and
// microphone. Acquire blocks until resolved and fails with one of
// ErrPermissionDenied, ErrDeviceNotFound or ErrDeviceBusy so callers
// can tell the cases apart.
type MediaProvider interface {
	Acquire(ctx context.Context, audioOnly bool) (MediaStream, error)
}
