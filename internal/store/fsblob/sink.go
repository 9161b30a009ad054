// Package fsblob is the filesystem implementation of the recording
// sink, for deployments without an object store.
package fsblob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/domain"
)

type Sink struct {
	dir string
}

func New(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Store writes the artifact under <dir>/<session>/<user>.webm and
// returns its path as the durable reference. An existing artifact for
// the same (session, user) is kept; the first upload wins.
func (s *Sink) Store(ctx context.Context, sessionID string, userID domain.UserID, r io.Reader, size int64) (string, error) {
	dir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(dir, string(userID)+".webm")

	if _, err := os.Stat(path); err == nil {
		log.Info().Str("module", "fsblob").Str("path", path).Msg("duplicate upload ignored")
		return path, nil
	}

	f, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	log.Info().Str("module", "fsblob").
		Str("session", sessionID).
		Str("path", path).
		Int64("size", size).
		Msg("recording stored")
	return path, nil
}
