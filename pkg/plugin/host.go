// Package plugin implements the Lifecycle & Plugin Host (spec.md §4.5):
// activation order, configuration snapshots, reset semantics, and teardown
// cleanup for every capability registered with the agent.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/clarity-agent/pkg/kit"
	"github.com/hazyhaar/clarity-agent/pkg/session"
)

// ErrDuplicateActivation is the Fatal-class error spec.md §7 describes:
// "duplicate activation of the agent on the same page; reported once, then
// the second instance refuses to start."
var ErrDuplicateActivation = errors.New("plugin: agent already activated on this page")

// Capability is the lifecycle contract every plugin (and the Layout
// Tracker itself) satisfies (spec.md §4.5, §9 "Dynamic plugin dispatch").
type Capability interface {
	Name() string
	Activate(ctx context.Context, sess *session.Session) error
	Reset(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Host owns an ordered list of capabilities and drives their lifecycle.
// The host calls Reset first, then Activate, and guarantees Teardown runs
// exactly once per activation.
type Host struct {
	mu           sync.Mutex
	capabilities []Capability
	activated    bool
	torndown     bool
	middleware   kit.Middleware
	logger       *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithMiddleware wraps every capability lifecycle call (Activate/Reset/
// Teardown) with the given endpoint middleware — e.g. logging or panic
// recovery — without each plugin having to implement it itself.
func WithMiddleware(mw kit.Middleware) Option {
	return func(h *Host) { h.middleware = mw }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// NewHost creates a Host over an ordered list of capabilities. Order is
// activation order.
func NewHost(capabilities []Capability, opts ...Option) *Host {
	h := &Host{capabilities: capabilities, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if h.middleware == nil {
		h.middleware = kit.Chain()
	}
	return h
}

// Activate resets every capability, then activates them in order, passing
// the same immutable config snapshot to each (spec.md §4.5: "Plugins
// receive a config snapshot at activation; runtime mutation of config is
// not supported."). A second call while already activated is the Fatal
// duplicate-activation error, reported once.
func (h *Host) Activate(ctx context.Context, sess *session.Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.activated {
		h.logger.Error("plugin: duplicate activation refused", "impression_id", sess.ImpressionID)
		return ErrDuplicateActivation
	}

	for _, cap := range h.capabilities {
		if err := h.invoke(ctx, "reset", cap.Name(), func(ctx context.Context) error {
			return cap.Reset(ctx)
		}); err != nil {
			return fmt.Errorf("plugin: reset %s: %w", cap.Name(), err)
		}
	}

	for _, cap := range h.capabilities {
		if err := h.invoke(ctx, "activate", cap.Name(), func(ctx context.Context) error {
			return cap.Activate(ctx, sess)
		}); err != nil {
			return fmt.Errorf("plugin: activate %s: %w", cap.Name(), err)
		}
		h.logger.Info("plugin: activated", "capability", cap.Name())
	}

	h.activated = true
	h.torndown = false
	return nil
}

// Teardown runs every capability's Teardown exactly once. Subsequent calls
// are no-ops, matching "guarantees teardown runs exactly once per
// activation on unload or explicit stop."
func (h *Host) Teardown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.torndown || !h.activated {
		return nil
	}

	var firstErr error
	for i := len(h.capabilities) - 1; i >= 0; i-- {
		cap := h.capabilities[i]
		if err := h.invoke(ctx, "teardown", cap.Name(), func(ctx context.Context) error {
			return cap.Teardown(ctx)
		}); err != nil {
			h.logger.Error("plugin: teardown failed", "capability", cap.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	h.torndown = true
	h.activated = false
	return firstErr
}

func (h *Host) invoke(ctx context.Context, phase, name string, fn func(context.Context) error) error {
	endpoint := h.middleware(func(ctx context.Context, _ any) (any, error) {
		return nil, fn(ctx)
	})
	_, err := endpoint(ctx, phase+":"+name)
	return err
}
