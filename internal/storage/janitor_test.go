package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeAged(t *testing.T, path string, size int, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func newIdleJanitor(roots []string, capGB int) *Janitor {
	j := &Janitor{
		roots:  roots,
		capGB:  capGB,
		log:    zerolog.Nop(),
		ticker: time.NewTicker(time.Hour),
		done:   make(chan struct{}),
	}
	// No background loop; tests drive EnforceCap directly.
	return j
}

func TestEnforceCapZeroDeletesAllManaged(t *testing.T) {
	pub := t.TempDir()
	ev := t.TempDir()

	oldest := filepath.Join(pub, "public_cam0_20240101000000.mp4")
	middle := filepath.Join(ev, "cam0", "evidence_cam0_20240102000000_0000.enc")
	newest := filepath.Join(pub, "public_cam0_20240103000000.mp4")

	writeAged(t, oldest, 1024, 72*time.Hour)
	writeAged(t, middle, 1024, 48*time.Hour)
	writeAged(t, newest, 1024, 24*time.Hour)
	// The sidecar follows its segment.
	writeAged(t, oldest[:len(oldest)-4]+".json", 16, 72*time.Hour)

	// Cap of zero forces deletion until nothing is left: verifies that
	// every managed extension goes, across both roots.
	j := newIdleJanitor([]string{pub, ev}, 0)
	if err := j.EnforceCap(); err != nil {
		t.Fatalf("EnforceCap: %v", err)
	}

	for _, path := range []string{oldest, middle, newest} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s survived a zero cap", filepath.Base(path))
		}
	}
	if _, err := os.Stat(oldest[:len(oldest)-4] + ".json"); !os.IsNotExist(err) {
		t.Error("sidecar survived its segment")
	}
}

func TestEnforceCapUnderLimitKeepsEverything(t *testing.T) {
	pub := t.TempDir()
	path := filepath.Join(pub, "public_cam0_20240101000000.mp4")
	writeAged(t, path, 1024, time.Hour)

	j := newIdleJanitor([]string{pub}, 50)
	if err := j.EnforceCap(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Error("file under cap was deleted")
	}
}

func TestEnforceCapIgnoresForeignFiles(t *testing.T) {
	pub := t.TempDir()
	foreign := filepath.Join(pub, "notes.txt")
	writeAged(t, foreign, 2048, 100*time.Hour)

	j := newIdleJanitor([]string{pub}, 0)
	if err := j.EnforceCap(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("non-recording file was deleted")
	}
}

func TestUsage(t *testing.T) {
	pub := t.TempDir()
	writeAged(t, filepath.Join(pub, "public_cam0_20240101000000.mp4"), 4096, time.Hour)

	j := newIdleJanitor([]string{pub}, 50)
	if got := j.Usage(); got != 4096 {
		t.Errorf("usage = %d, want 4096", got)
	}
}

func TestJanitorStop(t *testing.T) {
	j := NewJanitor([]string{t.TempDir()}, 50, zerolog.Nop())
	j.Stop() // must not hang or panic
}
