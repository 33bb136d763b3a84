package session_test

import (
	"testing"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/config"
	"github.com/hazyhaar/clarity-agent/pkg/session"
)

func TestNew_GeneratesImpressionID(t *testing.T) {
	s := session.New(config.Default(), time.Now())
	if s.ImpressionID == "" {
		t.Fatal("expected a generated impression id")
	}
}

func TestNew_HonorsPinnedImpressionID(t *testing.T) {
	cfg := config.Default()
	cfg.ImpressionID = "imp_fixed"
	s := session.New(cfg, time.Now())
	if s.ImpressionID != "imp_fixed" {
		t.Fatalf("got %q, want imp_fixed", s.ImpressionID)
	}
}

func TestNextEventID_StartsAtZeroAndIsContiguous(t *testing.T) {
	s := session.New(config.Default(), time.Now())
	for i := uint64(0); i < 5; i++ {
		if got := s.NextEventID(); got != i {
			t.Fatalf("event %d: got %d", i, got)
		}
	}
}

func TestNextBatchSequence_StartsAtZero(t *testing.T) {
	s := session.New(config.Default(), time.Now())
	if got := s.NextBatchSequence(); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
	if got := s.NextBatchSequence(); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestTwoSessions_AreIndependent(t *testing.T) {
	s1 := session.New(config.Default(), time.Now())
	s2 := session.New(config.Default(), time.Now())
	s1.NextEventID()
	s1.NextEventID()
	if got := s2.NextEventID(); got != 0 {
		t.Fatalf("expected independent counters, got %d", got)
	}
}
