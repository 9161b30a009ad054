package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Point at a config file that does not exist so only defaults apply.
	t.Setenv("CONFIG_ENV", "test-nonexistent")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Mode != "release" {
		t.Errorf("mode = %q, want release", cfg.Mode)
	}
	if cfg.RecordingDir != "./recordings" {
		t.Errorf("recording_dir = %q", cfg.RecordingDir)
	}
	if cfg.GracePeriod != 30*time.Second {
		t.Errorf("grace_period = %v, want 30s", cfg.GracePeriod)
	}
	if cfg.TranscriptDedupWindow != 10*time.Second {
		t.Errorf("transcript_dedup_window = %v, want 10s", cfg.TranscriptDedupWindow)
	}
	if cfg.MaxParticipants != 8 {
		t.Errorf("max_participants = %d, want 8", cfg.MaxParticipants)
	}
}
