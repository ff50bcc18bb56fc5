package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestFilesystemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFilesystemStore(t.TempDir())

	if err := s.PutContent(ctx, "a/b/c", []byte("hello")); err != nil {
		t.Fatalf("PutContent: %v", err)
	}
	ok, err := s.Exists(ctx, "a/b/c")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
	data, err := s.GetContent(ctx, "a/b/c")
	if err != nil {
		t.Fatalf("GetContent: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q want %q", data, "hello")
	}

	size, err := s.GetSize(ctx, "a/b/c")
	if err != nil || size != 5 {
		t.Fatalf("GetSize: size=%d err=%v", size, err)
	}

	if err := s.Remove(ctx, "a/b/c"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ok, err = s.Exists(ctx, "a/b/c")
	if err != nil || ok {
		t.Fatalf("expected removed, Exists ok=%v err=%v", ok, err)
	}
	// Idempotent: removing again is not an error.
	if err := s.Remove(ctx, "a/b/c"); err != nil {
		t.Fatalf("Remove (idempotent): %v", err)
	}
}

func TestFilesystemStoreGetContentMissing(t *testing.T) {
	s := NewFilesystemStore(t.TempDir())
	_, err := s.GetContent(context.Background(), "nope")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFilesystemStoreStreamWriteThenRead(t *testing.T) {
	ctx := context.Background()
	s := NewFilesystemStore(t.TempDir())

	payload := bytes.Repeat([]byte("x"), 4096)
	if err := s.StreamWrite(ctx, "big", bytes.NewReader(payload)); err != nil {
		t.Fatalf("StreamWrite: %v", err)
	}
	rc, err := s.StreamRead(ctx, "big")
	if err != nil {
		t.Fatalf("StreamRead: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes want %d", len(got), len(payload))
	}
}

func TestFilesystemStoreLocalPathHint(t *testing.T) {
	s := NewFilesystemStore(t.TempDir())
	path, ok := s.LocalPath("images/abc/layer")
	if !ok || path == "" {
		t.Fatalf("expected a local path hint, got %q ok=%v", path, ok)
	}
}
