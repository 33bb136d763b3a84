// Package batcher implements the Batcher (spec.md §4.4): it accumulates
// events emitted by the pipeline, enforces the configured byte budget per
// batch, compresses the serialized payload, and hands framed
// CompressedBatch messages to an uploader with strictly increasing
// sequence numbers.
package batcher

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

// Envelope carries the framing metadata attached to every batch.
type Envelope struct {
	ImpressionID   string  `json:"impressionId"`
	SequenceNumber uint64  `json:"sequenceNumber"`
	Time           float64 `json:"time"`
}

// Payload is what gets serialized and compressed. Metadata is only
// present on the first batch of a session (spec.md §4.4).
type Payload struct {
	Envelope Envelope       `json:"envelope"`
	Events   []any          `json:"events"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CompressedBatch is the message the Batcher hands back to the
// foreground for upload.
type CompressedBatch struct {
	CompressedData []byte
	RawData        []byte
	EventCount     int
}

// Emitter receives a completed batch, typically an upload sink.
type Emitter func(CompressedBatch)

// Batcher accumulates telemetry.Event values and flushes them once the
// configured byte budget is reached, on an explicit ForceCompression, or
// when the caller finishes a session.
type Batcher struct {
	impressionID string
	batchLimit   int
	metadata     map[string]any
	emit         Emitter
	encoder      *zstd.Encoder

	mu             sync.Mutex
	nextBatchEvents []telemetry.Event
	nextBatchBytes  int
	sequence        uint64
	singleXhrError  bool
}

// New creates a Batcher. metadata is attached to the sequence-0 batch
// only; it typically carries page URL, viewport, and user-agent
// information collected once at activation.
func New(impressionID string, batchLimit int, metadata map[string]any, emit Emitter) (*Batcher, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("batcher: create zstd encoder: %w", err)
	}
	return &Batcher{
		impressionID: impressionID,
		batchLimit:   batchLimit,
		metadata:     metadata,
		emit:         emit,
		encoder:      enc,
	}, nil
}

// AddEvent implements the algorithm in spec.md §4.4 exactly: serialize,
// flush first if appending would overflow the budget, append, then flush
// again if the append alone reached the budget (a lone oversize event).
func (b *Batcher) AddEvent(event telemetry.Event, timeMs float64) error {
	raw, err := json.Marshal(event.ToArray())
	if err != nil {
		return fmt.Errorf("batcher: serialize event: %w", err)
	}
	length := len(raw)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.nextBatchBytes > 0 && b.nextBatchBytes+length > b.batchLimit {
		b.flushLocked(timeMs)
	}

	b.nextBatchEvents = append(b.nextBatchEvents, event)
	b.nextBatchBytes += length
	b.singleXhrError = len(b.nextBatchEvents) == 1 && b.nextBatchEvents[0].Type == string(telemetry.KindXhrError)

	if b.nextBatchBytes >= b.batchLimit {
		b.flushLocked(timeMs)
	}
	return nil
}

// ForceCompression flushes whatever is currently buffered.
func (b *Batcher) ForceCompression(timeMs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked(timeMs)
}

// flushLocked implements Flush. A batch consisting of exactly one
// XhrError event is dropped rather than emitted — spec.md §4.4's
// rationale: a failed upload produces an instrumentation event, which
// would form a batch of one, whose own failure would spawn another,
// indefinitely. The dropped batch's sequence number is not consumed.
func (b *Batcher) flushLocked(timeMs float64) {
	if b.nextBatchBytes == 0 {
		return
	}
	if b.singleXhrError {
		b.resetLocked()
		return
	}

	envelope := Envelope{
		ImpressionID:   b.impressionID,
		SequenceNumber: b.sequence,
		Time:           timeMs,
	}
	events := make([]any, len(b.nextBatchEvents))
	for i, ev := range b.nextBatchEvents {
		events[i] = ev.ToArray()
	}
	payload := Payload{Envelope: envelope, Events: events}
	if b.sequence == 0 {
		payload.Metadata = b.metadata
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Serialization of our own well-typed payload should never fail;
		// dropping the batch is preferable to blocking the background
		// context forever.
		b.resetLocked()
		return
	}

	compressed := b.encoder.EncodeAll(raw, nil)
	count := len(b.nextBatchEvents)
	b.sequence++
	b.resetLocked()

	b.emit(CompressedBatch{CompressedData: compressed, RawData: raw, EventCount: count})
}

func (b *Batcher) resetLocked() {
	b.nextBatchEvents = nil
	b.nextBatchBytes = 0
	b.singleXhrError = false
}

// Sequence returns the next sequence number to be assigned.
func (b *Batcher) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sequence
}
