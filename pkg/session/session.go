// Package session gives the agent an explicit, per-page state object
// instead of package-level globals (spec.md §9 "Global state": "the agent
// avoids module-level mutable state so multiple independent instances —
// e.g. under test — do not interfere with each other").
package session

import (
	"sync/atomic"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/config"
	"github.com/hazyhaar/clarity-agent/pkg/idgen"
)

// Session is the single object threaded through the Layout Tracker, Event
// Pipeline, Batcher, and Plugin Host for one page activation.
type Session struct {
	ImpressionID string
	Config       config.Config
	StartTime    time.Time

	eventSeq uint64
	batchSeq uint64
}

// New creates a Session with a fresh impression ID, unless cfg already
// pins one (useful for tests that need a deterministic ID).
func New(cfg config.Config, startTime time.Time) *Session {
	impressionID := cfg.ImpressionID
	if impressionID == "" {
		impressionID = idgen.New()
	}
	return &Session{
		ImpressionID: impressionID,
		Config:       cfg,
		StartTime:    startTime,
	}
}

// NextEventID hands out contiguous event ids starting at 0, matching the
// Event Pipeline's "ids are contiguous per session, starting at zero"
// invariant (spec.md §4.3).
func (s *Session) NextEventID() uint64 {
	return atomic.AddUint64(&s.eventSeq, 1) - 1
}

// NextBatchSequence hands out contiguous batch sequence numbers starting
// at zero (spec.md §4.4).
func (s *Session) NextBatchSequence() uint64 {
	return atomic.AddUint64(&s.batchSeq, 1) - 1
}

// ElapsedMillis returns milliseconds since the session started, the
// "relative" timestamp base the Event Pipeline's GetTimestamp uses.
func (s *Session) ElapsedMillis(now time.Time) float64 {
	return float64(now.Sub(s.StartTime).Microseconds()) / 1000.0
}
