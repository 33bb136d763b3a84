// Package sink defines upload backends for compressed batches emitted by
// the Batcher: stdout (debugging), webhook (production upload), in-process
// callback (embedding), and a fan-out router combining several.
package sink

import (
	"context"

	"github.com/hazyhaar/clarity-agent/pkg/batcher"
)

// Sink is the output interface every upload backend implements.
type Sink interface {
	Send(ctx context.Context, batch batcher.CompressedBatch) error
	Close() error
}
