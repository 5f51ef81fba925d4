// Package replaylog implements the crash-diagnostic traffic/event trail
// named in SPEC_FULL.md §A.3.6: a record of routed Message Director events
// plus periodic State Server object-table snapshots, for post-mortem replay
// of cluster behavior. Adapted directly from the teacher's internal/replay
// package (Writer/Header), repurposed from game-world frames to MD/SS
// events and renamed accordingly; the snappy event stream and zstd frame
// stream are the same two compressors the teacher wires for the same
// purpose (bursty small JSON lines vs. periodic binary blobs).
package replaylog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var bundleIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SnapshotInterval is the minimum spacing between persisted object-table
// snapshots, mirroring the teacher's fixed frame cadence.
const SnapshotInterval = 1 * time.Second

// RoutingEvent is one terminal MD routing decision: a message handle that
// was routed or dropped (§4.2). The Director does not report requeues.
type RoutingEvent struct {
	Channel     uint64
	Sender      uint64
	MessageType uint16
	Outcome     string // "routed" | "dropped"
	PayloadSize int
}

type snapshotBlob struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// Manifest describes the replay bundle layout.
type Manifest struct {
	Version      int    `json:"version"`
	CreatedAt    string `json:"created_at"`
	SchemaHash   uint32 `json:"schema_hash"`
	EventsPath   string `json:"events_path"`
	SnapshotPath string `json:"snapshots_path"`
}

// Writer streams routing events and object-table snapshots to a bundle
// directory under root, named <bundleID>-<timestamp>/.
type Writer struct {
	mu sync.Mutex

	dir string
	now func() time.Time

	eventFile   *os.File
	eventStream *snappy.Writer

	snapshotFile   *os.File
	snapshotStream *zstd.Encoder

	pending   []snapshotBlob
	lastFlush time.Time
}

// NewWriter creates the bundle directory and opens both compressed sinks.
func NewWriter(root, bundleID string, schemaHash uint32, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replaylog: root directory must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := bundleIDCleaner.ReplaceAllString(bundleID, "")
	if cleaned == "" {
		cleaned = "cluster"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	dir := filepath.Join(root, folder)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventsPath := filepath.Join(dir, "events.jsonl.sz")
	snapshotsPath := filepath.Join(dir, "snapshots.bin.zst")
	manifestPath := filepath.Join(dir, "manifest.json")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	snapshotFile, err := os.Create(snapshotsPath)
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	snapshotStream, err := zstd.NewWriter(snapshotFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		snapshotFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:      1,
		CreatedAt:    created.Format(time.RFC3339Nano),
		SchemaHash:   schemaHash,
		EventsPath:   "events.jsonl.sz",
		SnapshotPath: "snapshots.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		snapshotStream.Close()
		snapshotFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		snapshotStream.Close()
		snapshotFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:            dir,
		now:            clock,
		eventFile:      eventFile,
		eventStream:    eventStream,
		snapshotFile:   snapshotFile,
		snapshotStream: snapshotStream,
	}, manifest, nil
}

// Directory exposes the bundle directory path.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// AppendRoutingEvent writes one JSON-lines record to the compressed event
// stream, flushed immediately since routing events are comparatively rare
// and diagnostic value decays fast if buffered through a crash.
func (w *Writer) AppendRoutingEvent(ev RoutingEvent) error {
	if w == nil {
		return fmt.Errorf("replaylog: writer not initialised")
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()

	record := struct {
		CapturedAt  string `json:"captured_at"`
		Channel     uint64 `json:"channel"`
		Sender      uint64 `json:"sender"`
		MessageType uint16 `json:"message_type"`
		Outcome     string `json:"outcome"`
		PayloadSize int    `json:"payload_size"`
	}{
		CapturedAt:  captured.Format(time.RFC3339Nano),
		Channel:     ev.Channel,
		Sender:      ev.Sender,
		MessageType: ev.MessageType,
		Outcome:     ev.Outcome,
		PayloadSize: ev.PayloadSize,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(line); err != nil {
		return err
	}
	if _, err := w.eventStream.Write([]byte("\n")); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// AppendObjectSnapshot buffers a full object-table snapshot, persisting the
// batch once SnapshotInterval has elapsed since the last flush.
func (w *Writer) AppendObjectSnapshot(tick uint64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("replaylog: writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, snapshotBlob{Tick: tick, CapturedAt: captured, Payload: clone})
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= SnapshotInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// Flush forces pending snapshots to be written regardless of cadence.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("replaylog: writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close flushes every buffer and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if err := w.flushLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.snapshotStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.snapshotFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// flushLocked writes buffered snapshots to the zstd stream; callers must
// hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	for _, snap := range w.pending {
		header := make([]byte, 8+8+4)
		binary.LittleEndian.PutUint64(header[0:8], snap.Tick)
		binary.LittleEndian.PutUint64(header[8:16], uint64(snap.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(snap.Payload)))
		if _, err := w.snapshotStream.Write(header); err != nil {
			return err
		}
		if _, err := w.snapshotStream.Write(snap.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
