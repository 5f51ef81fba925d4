package replaylog

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewWriterCreatesBundleWithManifest(t *testing.T) {
	root := t.TempDir()
	created := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	w, manifest, err := NewWriter(root, "cluster one!!", 0xdeadbeef, fixedClock(created))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if manifest.SchemaHash != 0xdeadbeef {
		t.Fatalf("expected schema hash preserved, got %x", manifest.SchemaHash)
	}
	if !strings.HasPrefix(filepath.Base(w.Directory()), "clusterone") {
		t.Fatalf("expected cleaned bundle id prefix, got %s", w.Directory())
	}
	if _, err := os.Stat(filepath.Join(w.Directory(), "manifest.json")); err != nil {
		t.Fatalf("expected manifest.json to exist: %v", err)
	}
}

func TestAppendRoutingEventIsReadableBack(t *testing.T) {
	root := t.TempDir()
	w, _, err := NewWriter(root, "bundle", 1, fixedClock(time.Now()))
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.AppendRoutingEvent(RoutingEvent{Channel: 100, Sender: 200, MessageType: 42, Outcome: "routed", PayloadSize: 16}); err != nil {
		t.Fatalf("AppendRoutingEvent: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(w.Directory(), "events.jsonl.sz"))
	if err != nil {
		t.Fatalf("open events file: %v", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(snappy.NewReader(f))
	if err != nil {
		t.Fatalf("decompress events: %v", err)
	}
	if !strings.Contains(string(raw), `"outcome":"routed"`) {
		t.Fatalf("expected decoded event to contain outcome field, got %s", raw)
	}
}

func TestAppendObjectSnapshotFlushesOnCadenceAndClose(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	clock := &movableClock{t: now}

	w, _, err := NewWriter(root, "bundle", 1, clock.Now)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.AppendObjectSnapshot(1, []byte("first-snapshot")); err != nil {
		t.Fatalf("AppendObjectSnapshot: %v", err)
	}
	// Advance time past the cadence so the second append forces a flush.
	clock.t = clock.t.Add(2 * SnapshotInterval)
	if err := w.AppendObjectSnapshot(2, []byte("second-snapshot")); err != nil {
		t.Fatalf("AppendObjectSnapshot: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(filepath.Join(w.Directory(), "snapshots.bin.zst"))
	if err != nil {
		t.Fatalf("open snapshots file: %v", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decompress snapshots: %v", err)
	}

	var tick1 uint64
	tick1 = binary.LittleEndian.Uint64(raw[0:8])
	if tick1 != 1 {
		t.Fatalf("expected first tick 1, got %d", tick1)
	}
	payloadLen := binary.LittleEndian.Uint32(raw[16:20])
	payload := raw[20 : 20+payloadLen]
	if string(payload) != "first-snapshot" {
		t.Fatalf("expected first payload to round-trip, got %q", payload)
	}
}

type movableClock struct{ t time.Time }

func (c *movableClock) Now() time.Time { return c.t }
