package fsblob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStoreWritesArtifact(t *testing.T) {
	sink, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	data := "webm bytes"
	url, err := sink.Store(context.Background(), "sess-1", "user-1", strings.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := os.ReadFile(url)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != data {
		t.Fatalf("artifact = %q, want %q", got, data)
	}
	if filepath.Base(url) != "user-1.webm" {
		t.Fatalf("unexpected artifact name %q", url)
	}
}

func TestStoreFirstUploadWins(t *testing.T) {
	sink, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	first, err := sink.Store(context.Background(), "sess-1", "user-1", strings.NewReader("original"), 8)
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	second, err := sink.Store(context.Background(), "sess-1", "user-1", strings.NewReader("replacement"), 11)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if first != second {
		t.Fatalf("paths differ: %q vs %q", first, second)
	}
	got, _ := os.ReadFile(first)
	if string(got) != "original" {
		t.Fatalf("artifact overwritten: %q", got)
	}
}

func TestStoreSeparatesUsers(t *testing.T) {
	sink, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a, _ := sink.Store(context.Background(), "sess-1", "user-a", strings.NewReader("a"), 1)
	b, _ := sink.Store(context.Background(), "sess-1", "user-b", strings.NewReader("b"), 1)
	if a == b {
		t.Fatalf("both users share %q", a)
	}
}
