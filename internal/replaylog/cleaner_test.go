package replaylog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mkBundle(t *testing.T, root, name string, modTime time.Time) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(dir, modTime, modTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	return dir
}

func TestCleanerEnforcesMaxBundles(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	mkBundle(t, root, "oldest", base.Add(-3*time.Hour))
	mkBundle(t, root, "middle", base.Add(-2*time.Hour))
	newest := mkBundle(t, root, "newest", base.Add(-1*time.Hour))

	c := NewCleaner(root, RetentionPolicy{MaxBundles: 1}, nil)
	c.now = func() time.Time { return base }
	c.RunOnce()

	if _, err := os.Stat(newest); err != nil {
		t.Fatalf("expected newest bundle to survive: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 surviving bundle, got %d", len(entries))
	}

	stats := c.Stats()
	if stats.Bundles != 1 {
		t.Fatalf("expected stats to report 1 retained bundle, got %d", stats.Bundles)
	}
}

func TestCleanerEnforcesMaxAge(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	stale := mkBundle(t, root, "stale", base.Add(-48*time.Hour))
	fresh := mkBundle(t, root, "fresh", base.Add(-1*time.Hour))

	c := NewCleaner(root, RetentionPolicy{MaxAge: 24 * time.Hour}, nil)
	c.now = func() time.Time { return base }
	c.RunOnce()

	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh bundle to survive: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale bundle to be removed, stat err=%v", err)
	}
}
