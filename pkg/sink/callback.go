package sink

import (
	"context"

	"github.com/hazyhaar/clarity-agent/pkg/batcher"
)

// BatchFunc is called for each compressed batch, in-process, with zero
// serialization — used when the agent and its collector share a process
// (e.g. an embedding test harness).
type BatchFunc func(ctx context.Context, batch batcher.CompressedBatch) error

// Callback delivers batches via a Go function call.
type Callback struct {
	onBatch BatchFunc
}

// NewCallback creates a Callback sink. onBatch may be nil, in which case
// batches are silently dropped.
func NewCallback(onBatch BatchFunc) *Callback {
	return &Callback{onBatch: onBatch}
}

func (c *Callback) Send(ctx context.Context, batch batcher.CompressedBatch) error {
	if c.onBatch != nil {
		return c.onBatch(ctx, batch)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
