package domain

import "errors"

// Failure taxonomy shared by the service and the client. Callers match
// with errors.Is; adapters map these to HTTP status codes or socket
// error frames.
var (
	ErrNotFound     = errors.New("room not found")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("session already ended")
	ErrRoomFull     = errors.New("room full")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTimeout      = errors.New("timed out")

	ErrPermissionDenied = errors.New("media permission denied")
	ErrDeviceNotFound   = errors.New("media device not found")
	ErrDeviceBusy       = errors.New("media device busy")

	ErrNegotiationFailure     = errors.New("peer negotiation failed")
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	ErrUploadFailure          = errors.New("recording upload failed")
)
