// Copyright 2026 The DroidEnv Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/droidenv/droidenv/rl"
	"github.com/droidenv/droidenv/simulator"
)

// formatVersion is bumped on any incompatible record change.
const formatVersion = 1

// Header opens every trace file.
type Header struct {
	Version       int    `cbor:"version"`
	EpisodeID     string `cbor:"episode_id"`
	TaskID        string `cbor:"task_id"`
	StartedAtUnix int64  `cbor:"started_at_us"`
}

// StartedAt returns the recording start time.
func (h Header) StartedAt() time.Time { return time.UnixMicro(h.StartedAtUnix) }

// Record is one timestep on disk. Frame is the zstd-compressed pixel
// buffer; it is empty when the frame is identical to the previous
// record's, in which case FrameHash still identifies it.
type Record struct {
	Index           int      `cbor:"index"`
	StepType        int      `cbor:"step_type"`
	Reward          float64  `cbor:"reward"`
	Discount        float64  `cbor:"discount"`
	TimedeltaMicros int64    `cbor:"timedelta_us"`
	Orientation     [4]uint8 `cbor:"orientation"`
	Height          int      `cbor:"height"`
	Width           int      `cbor:"width"`
	FrameHash       []byte   `cbor:"frame_hash"`
	Frame           []byte   `cbor:"frame,omitempty"`
}

// Recorder appends one trace to a writer. Not safe for concurrent use.
type Recorder struct {
	encoder    *cbor.Encoder
	compressor *zstd.Encoder
	episodeID  string
	index      int
	lastHash   [32]byte
	hasLast    bool
}

// NewRecorder writes the trace header and returns a recorder with a
// fresh episode identifier.
func NewRecorder(w io.Writer, taskID string, now time.Time) (*Recorder, error) {
	compressor, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("trace: zstd encoder: %w", err)
	}

	r := &Recorder{
		encoder:    cbor.NewEncoder(w),
		compressor: compressor,
		episodeID:  uuid.NewString(),
	}
	header := Header{
		Version:       formatVersion,
		EpisodeID:     r.episodeID,
		TaskID:        taskID,
		StartedAtUnix: now.UnixMicro(),
	}
	if err := r.encoder.Encode(header); err != nil {
		return nil, fmt.Errorf("trace: writing header: %w", err)
	}
	return r, nil
}

// EpisodeID returns the identifier written into the header.
func (r *Recorder) EpisodeID() string { return r.episodeID }

// Record appends one timestep. Timesteps without an observation (a
// device-failure truncation that lost the frame) are recorded with an
// empty frame and hash.
func (r *Recorder) Record(ts rl.TimeStep) error {
	record := Record{
		Index:    r.index,
		StepType: int(ts.StepType),
		Reward:   ts.Reward,
		Discount: ts.Discount,
	}

	if obs := ts.Observation; obs != nil {
		record.TimedeltaMicros = obs.TimedeltaMicros
		record.Orientation = obs.Orientation
		record.Height = obs.Pixels.Height
		record.Width = obs.Pixels.Width

		hash := blake3.Sum256(obs.Pixels.Pixels)
		record.FrameHash = hash[:]
		if !r.hasLast || hash != r.lastHash {
			record.Frame = r.compressor.EncodeAll(obs.Pixels.Pixels, nil)
		}
		r.lastHash = hash
		r.hasLast = true
	}

	if err := r.encoder.Encode(record); err != nil {
		return fmt.Errorf("trace: writing record %d: %w", record.Index, err)
	}
	r.index++
	return nil
}

// Close releases the compressor. The underlying writer is not closed.
func (r *Recorder) Close() error {
	r.compressor.Close()
	return nil
}

// Step is one decoded timestep: the stored record plus its
// reconstituted pixels, with deduplicated frames filled back in.
type Step struct {
	Record Record
	Pixels simulator.Image
}

// Reader decodes one trace stream. Not safe for concurrent use.
type Reader struct {
	decoder      *cbor.Decoder
	decompressor *zstd.Decoder
	header       Header
	lastPixels   []byte
	lastHash     []byte
}

// NewReader decodes the header and prepares to iterate records.
func NewReader(r io.Reader) (*Reader, error) {
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("trace: zstd decoder: %w", err)
	}

	reader := &Reader{
		decoder:      cbor.NewDecoder(r),
		decompressor: decompressor,
	}
	if err := reader.decoder.Decode(&reader.header); err != nil {
		return nil, fmt.Errorf("trace: reading header: %w", err)
	}
	if reader.header.Version != formatVersion {
		return nil, fmt.Errorf("trace: unsupported format version %d", reader.header.Version)
	}
	return reader, nil
}

// Header returns the decoded trace header.
func (r *Reader) Header() Header { return r.header }

// Next decodes one step. Returns io.EOF after the last record.
func (r *Reader) Next() (Step, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		if errors.Is(err, io.EOF) {
			return Step{}, io.EOF
		}
		return Step{}, fmt.Errorf("trace: reading record: %w", err)
	}

	step := Step{Record: record}
	switch {
	case len(record.Frame) > 0:
		pixels, err := r.decompressor.DecodeAll(record.Frame, nil)
		if err != nil {
			return Step{}, fmt.Errorf("trace: decompressing record %d: %w", record.Index, err)
		}
		hash := blake3.Sum256(pixels)
		if !bytes.Equal(hash[:], record.FrameHash) {
			return Step{}, fmt.Errorf("trace: record %d frame hash mismatch", record.Index)
		}
		r.lastPixels = pixels
		r.lastHash = record.FrameHash

	case len(record.FrameHash) > 0:
		// Deduplicated frame: must match the previous record's hash.
		if !bytes.Equal(record.FrameHash, r.lastHash) {
			return Step{}, fmt.Errorf("trace: record %d references an unknown frame", record.Index)
		}
	}

	if len(record.FrameHash) > 0 {
		step.Pixels = simulator.Image{
			Height: record.Height,
			Width:  record.Width,
			Pixels: r.lastPixels,
		}
	}
	return step, nil
}

// Close releases the decompressor. The underlying reader is not
// closed.
func (r *Reader) Close() error {
	r.decompressor.Close()
	return nil
}
