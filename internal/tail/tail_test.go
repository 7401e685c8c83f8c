package tail

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestReplayFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.log")
	if err := os.WriteFile(path, []byte("first line\nsecond line\n"), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var buf bytes.Buffer
	offset, err := Replay(path, 0, &buf)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if buf.String() != "first line\nsecond line\n" {
		t.Errorf("replayed %q", buf.String())
	}
	if offset != int64(buf.Len()) {
		t.Errorf("offset = %d, want %d", offset, buf.Len())
	}

	// Resuming from the returned offset emits nothing new.
	var again bytes.Buffer
	offset2, err := Replay(path, offset, &again)
	if err != nil {
		t.Fatalf("second Replay failed: %v", err)
	}
	if again.Len() != 0 {
		t.Errorf("re-emitted %q", again.String())
	}
	if offset2 != offset {
		t.Errorf("offset moved from %d to %d", offset, offset2)
	}
}

func TestReplayPartialOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.log")
	if err := os.WriteFile(path, []byte("old\nnew\n"), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var buf bytes.Buffer
	if _, err := Replay(path, 4, &buf); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if buf.String() != "new\n" {
		t.Errorf("replayed %q, want new line only", buf.String())
	}
}

func TestReplayMissingFile(t *testing.T) {
	var buf bytes.Buffer
	offset, err := Replay(filepath.Join(t.TempDir(), "absent.log"), 7, &buf)
	if err != nil {
		t.Fatalf("Replay of missing file must not fail: %v", err)
	}
	if offset != 7 || buf.Len() != 0 {
		t.Errorf("offset = %d, output = %q", offset, buf.String())
	}
}

// syncBuffer guards a bytes.Buffer for cross-goroutine use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowStreamsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.log")
	if err := os.WriteFile(path, []byte("history\n"), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := Follow(ctx, path, 0, out); err != nil {
			t.Errorf("Follow failed: %v", err)
		}
	}()

	// Wait for the replay portion to land before appending.
	deadline := time.After(2 * time.Second)
	for out.String() != "history\n" {
		select {
		case <-deadline:
			t.Fatalf("replay never arrived, got %q", out.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("live\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	deadline = time.After(2 * time.Second)
	for out.String() != "history\nlive\n" {
		select {
		case <-deadline:
			t.Fatalf("append never arrived, got %q", out.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
