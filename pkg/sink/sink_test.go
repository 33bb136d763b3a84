package sink_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/clarity-agent/pkg/batcher"
	"github.com/hazyhaar/clarity-agent/pkg/sink"
)

type failingSink struct{ err error }

func (f *failingSink) Send(ctx context.Context, batch batcher.CompressedBatch) error { return f.err }
func (f *failingSink) Close() error                                                  { return nil }

func TestRouter_FansOutToAllSinks(t *testing.T) {
	var calls int
	cb := sink.NewCallback(func(ctx context.Context, batch batcher.CompressedBatch) error {
		calls++
		return nil
	})
	stdoutBuf := &bytes.Buffer{}
	router := sink.NewRouter(nil, cb, sink.NewStdout(stdoutBuf))

	err := router.Send(context.Background(), batcher.CompressedBatch{EventCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected callback sink invoked once, got %d", calls)
	}
	if stdoutBuf.Len() == 0 {
		t.Fatal("expected stdout sink to write a record")
	}
}

func TestRouter_ReturnsFirstErrorButStillCallsAllSinks(t *testing.T) {
	var calls int
	cb := sink.NewCallback(func(ctx context.Context, batch batcher.CompressedBatch) error {
		calls++
		return nil
	})
	failing := &failingSink{err: errors.New("boom")}
	router := sink.NewRouter(nil, failing, cb)

	err := router.Send(context.Background(), batcher.CompressedBatch{})
	if err == nil {
		t.Fatal("expected an error from the failing sink")
	}
	if calls != 1 {
		t.Fatalf("expected the callback sink to still run, got %d calls", calls)
	}
}

func TestCallback_NilHandlerDropsSilently(t *testing.T) {
	cb := sink.NewCallback(nil)
	if err := cb.Send(context.Background(), batcher.CompressedBatch{}); err != nil {
		t.Fatal(err)
	}
}
