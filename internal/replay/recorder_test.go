package replay

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
)

func TestRecorderRoundTripsFramesThroughSnappy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "observations.bin.sz")
	current := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	rec, err := NewRecorder(path, clock)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	frames := [][]byte{
		[]byte("observation-one"),
		[]byte("observation-two"),
		{},
	}
	for i, frame := range frames {
		if err := rec.RecordObservation(uint64(i+1), frame); err != nil {
			t.Fatalf("RecordObservation(%d): %v", i, err)
		}
	}

	stats := rec.Stats()
	if stats.Frames != 3 {
		t.Fatalf("stats.Frames = %d, want 3", stats.Frames)
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	sr := snappy.NewReader(f)

	for i, want := range frames {
		header := make([]byte, 12)
		if _, err := io.ReadFull(sr, header); err != nil {
			t.Fatalf("frame %d: read header: %v", i, err)
		}
		seq := binary.LittleEndian.Uint64(header[0:8])
		length := binary.LittleEndian.Uint32(header[8:12])
		if seq != uint64(i+1) {
			t.Fatalf("frame %d: sequence = %d, want %d", i, seq, i+1)
		}
		if int(length) != len(want) {
			t.Fatalf("frame %d: length = %d, want %d", i, length, len(want))
		}
		payload := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(sr, payload); err != nil {
				t.Fatalf("frame %d: read payload: %v", i, err)
			}
		}
		if string(payload) != string(want) {
			t.Fatalf("frame %d: payload = %q, want %q", i, payload, want)
		}
	}
}

func TestRecordObservationAfterCloseReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "observations.bin.sz")
	rec, err := NewRecorder(path, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.RecordObservation(1, []byte("x")); err != ErrRecorderClosed {
		t.Fatalf("RecordObservation after close = %v, want ErrRecorderClosed", err)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	if err := rec.RecordObservation(1, []byte("x")); err != nil {
		t.Fatalf("nil recorder RecordObservation: %v", err)
	}
	if stats := rec.Stats(); stats != (Stats{}) {
		t.Fatalf("nil recorder Stats = %+v, want zero value", stats)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("nil recorder Close: %v", err)
	}
}
