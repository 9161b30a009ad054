// Package callclient implements the client side of the call-session
// control plane: the session state machine, peer negotiation,
// mute-aware transcription capture and the chunked recording pipeline.
package callclient

import "errors"

// Failure kinds surfaced by the client. Match with errors.Is.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrAlreadyEnded = errors.New("session already ended")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRoomFull     = errors.New("room full")
	ErrTimeout      = errors.New("timed out")
	ErrBusy         = errors.New("session already joined")

	ErrPermissionDenied = errors.New("media permission denied")
	ErrDeviceNotFound   = errors.New("media device not found")
	ErrDeviceBusy       = errors.New("media device busy")

	ErrNegotiationFailed      = errors.New("peer negotiation failed")
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	ErrUploadFailed           = errors.New("recording upload failed")
)
