package responder

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReplyFromDefaultPool(t *testing.T) {
	r := New()
	for i := 0; i < 20; i++ {
		if r.Reply("Sophia") == "" {
			t.Fatal("empty reply")
		}
	}
}

func TestDelayOverride(t *testing.T) {
	r := New(WithDelay(50 * time.Millisecond))
	if r.Delay() != 50*time.Millisecond {
		t.Errorf("delay = %v", r.Delay())
	}
	if New().Delay() != DefaultDelay {
		t.Errorf("default delay = %v, want %v", New().Delay(), DefaultDelay)
	}
}

func TestRepliesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replies.txt")
	content := "# comment line\nhello from {agent}\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(WithRepliesFile(path))
	if got := r.Reply("Elena"); got != "hello from Elena" {
		t.Errorf("reply = %q, want agent substitution", got)
	}
	if r.size() != 1 {
		t.Errorf("pool size = %d, want 1 (comments and blanks skipped)", r.size())
	}
}

func TestMissingFileFallsBack(t *testing.T) {
	r := New(WithRepliesFile("/nonexistent/replies.txt"))
	if r.Reply("Sophia") == "" {
		t.Error("expected default pool fallback")
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replies.txt")
	if err := os.WriteFile(path, []byte("first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(WithRepliesFile(path))
	if got := r.Reply("x"); got != "first" {
		t.Fatalf("reply = %q", got)
	}

	if err := os.WriteFile(path, []byte("second\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := r.Reply("x"); got != "second" {
		t.Errorf("reply after reload = %q, want %q", got, "second")
	}
}
