package sink

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/clarity-agent/pkg/batcher"
)

// Stdout writes JSON lines describing each batch to an io.Writer (default
// os.Stdout) — a debugging sink, not a real collector.
type Stdout struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: w, enc: json.NewEncoder(w)}
}

func (s *Stdout) Send(_ context.Context, batch batcher.CompressedBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(record{
		EventCount: batch.EventCount,
		Compressed: base64.StdEncoding.EncodeToString(batch.CompressedData),
	})
}

func (s *Stdout) Close() error { return nil }

type record struct {
	EventCount int    `json:"eventCount"`
	Compressed string `json:"compressed"`
}
