package batcher_test

import (
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/hazyhaar/clarity-agent/pkg/batcher"
	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

func decompress(t *testing.T, data []byte) batcher.Payload {
	t.Helper()
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	var p batcher.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFlush_EmitsOnForceCompression(t *testing.T) {
	var got []batcher.CompressedBatch
	b, err := batcher.New("imp_1", 60*1024, map[string]any{"url": "https://example.com"}, func(cb batcher.CompressedBatch) {
		got = append(got, cb)
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := telemetry.Event{ID: 0, Origin: telemetry.OriginLayout, Type: "layout", Time: 10, Data: map[string]any{"tag": "div"}}
	if err := b.AddEvent(ev, 10); err != nil {
		t.Fatal(err)
	}
	b.ForceCompression(20)

	if len(got) != 1 {
		t.Fatalf("expected 1 emitted batch, got %d", len(got))
	}
	if got[0].EventCount != 1 {
		t.Fatalf("expected 1 event in batch, got %d", got[0].EventCount)
	}

	payload := decompress(t, got[0].CompressedData)
	if payload.Envelope.SequenceNumber != 0 {
		t.Fatalf("expected sequence 0, got %d", payload.Envelope.SequenceNumber)
	}
	if payload.Envelope.ImpressionID != "imp_1" {
		t.Fatalf("got impression id %q", payload.Envelope.ImpressionID)
	}
	if payload.Metadata["url"] != "https://example.com" {
		t.Fatalf("expected metadata on sequence-0 batch, got %v", payload.Metadata)
	}
}

func TestFlush_MetadataOnlyOnFirstBatch(t *testing.T) {
	var got []batcher.CompressedBatch
	b, err := batcher.New("imp_1", 60*1024, map[string]any{"url": "https://example.com"}, func(cb batcher.CompressedBatch) {
		got = append(got, cb)
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := telemetry.Event{ID: 0, Type: "layout"}
	b.AddEvent(ev, 0)
	b.ForceCompression(0)
	b.AddEvent(ev, 0)
	b.ForceCompression(0)

	if len(got) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(got))
	}
	second := decompress(t, got[1].CompressedData)
	if second.Metadata != nil {
		t.Fatalf("expected no metadata on sequence-1 batch, got %v", second.Metadata)
	}
	if second.Envelope.SequenceNumber != 1 {
		t.Fatalf("expected sequence 1, got %d", second.Envelope.SequenceNumber)
	}
}

func TestAddEvent_FlushesBeforeOverflowingBatchLimit(t *testing.T) {
	var got []batcher.CompressedBatch
	// A tiny limit forces every event into its own batch.
	b, err := batcher.New("imp_1", 10, nil, func(cb batcher.CompressedBatch) {
		got = append(got, cb)
	})
	if err != nil {
		t.Fatal(err)
	}

	b.AddEvent(telemetry.Event{ID: 0, Type: "a"}, 0)
	b.AddEvent(telemetry.Event{ID: 1, Type: "b"}, 0)
	b.ForceCompression(0)

	if len(got) != 2 {
		t.Fatalf("expected 2 batches from overflow-triggered flushes, got %d", len(got))
	}
}

func TestAddEvent_SuppressesLoneXhrErrorBatch(t *testing.T) {
	var got []batcher.CompressedBatch
	b, err := batcher.New("imp_1", 60*1024, nil, func(cb batcher.CompressedBatch) {
		got = append(got, cb)
	})
	if err != nil {
		t.Fatal(err)
	}

	xhrErr := telemetry.Event{ID: 0, Origin: telemetry.OriginInstrumentation, Type: string(telemetry.KindXhrError)}
	b.AddEvent(xhrErr, 0)
	b.ForceCompression(0)

	if len(got) != 0 {
		t.Fatalf("expected the lone XhrError batch to be suppressed, got %d emitted", len(got))
	}
	if b.Sequence() != 0 {
		t.Fatalf("suppressed batch must not consume a sequence number, got %d", b.Sequence())
	}

	// A normal event afterward still gets sequence 0.
	b.AddEvent(telemetry.Event{ID: 1, Type: "layout"}, 0)
	b.ForceCompression(0)
	if len(got) != 1 {
		t.Fatalf("expected the next real batch to emit, got %d", len(got))
	}
	payload := decompress(t, got[0].CompressedData)
	if payload.Envelope.SequenceNumber != 0 {
		t.Fatalf("expected sequence 0 to be preserved after suppression, got %d", payload.Envelope.SequenceNumber)
	}
}

func TestAddEvent_TwoEventBatchWithXhrErrorIsNotSuppressed(t *testing.T) {
	var got []batcher.CompressedBatch
	b, err := batcher.New("imp_1", 60*1024, nil, func(cb batcher.CompressedBatch) {
		got = append(got, cb)
	})
	if err != nil {
		t.Fatal(err)
	}

	b.AddEvent(telemetry.Event{ID: 0, Origin: telemetry.OriginInstrumentation, Type: string(telemetry.KindXhrError)}, 0)
	b.AddEvent(telemetry.Event{ID: 1, Type: "layout"}, 0)
	b.ForceCompression(0)

	if len(got) != 1 {
		t.Fatalf("expected the two-event batch to emit normally, got %d", len(got))
	}
	if got[0].EventCount != 2 {
		t.Fatalf("expected 2 events, got %d", got[0].EventCount)
	}
}
