package plugin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/config"
	"github.com/hazyhaar/clarity-agent/pkg/plugin"
	"github.com/hazyhaar/clarity-agent/pkg/session"
)

type recordingCapability struct {
	name         string
	calls        *[]string
	activateErr  error
	teardownErr  error
}

func (c *recordingCapability) Name() string { return c.name }
func (c *recordingCapability) Activate(ctx context.Context, sess *session.Session) error {
	*c.calls = append(*c.calls, "activate:"+c.name)
	return c.activateErr
}
func (c *recordingCapability) Reset(ctx context.Context) error {
	*c.calls = append(*c.calls, "reset:"+c.name)
	return nil
}
func (c *recordingCapability) Teardown(ctx context.Context) error {
	*c.calls = append(*c.calls, "teardown:"+c.name)
	return c.teardownErr
}

func TestActivate_ResetsAllThenActivatesInOrder(t *testing.T) {
	var calls []string
	a := &recordingCapability{name: "a", calls: &calls}
	b := &recordingCapability{name: "b", calls: &calls}
	host := plugin.NewHost([]plugin.Capability{a, b})
	sess := session.New(config.Default(), time.Now())

	if err := host.Activate(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	want := []string{"reset:a", "reset:b", "activate:a", "activate:b"}
	if len(calls) != len(want) {
		t.Fatalf("got %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: got %q, want %q (%v)", i, calls[i], want[i], calls)
		}
	}
}

func TestActivate_DuplicateRefused(t *testing.T) {
	var calls []string
	a := &recordingCapability{name: "a", calls: &calls}
	host := plugin.NewHost([]plugin.Capability{a})
	sess := session.New(config.Default(), time.Now())

	if err := host.Activate(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	err := host.Activate(context.Background(), sess)
	if !errors.Is(err, plugin.ErrDuplicateActivation) {
		t.Fatalf("expected ErrDuplicateActivation, got %v", err)
	}
}

func TestTeardown_RunsExactlyOnceAndInReverseOrder(t *testing.T) {
	var calls []string
	a := &recordingCapability{name: "a", calls: &calls}
	b := &recordingCapability{name: "b", calls: &calls}
	host := plugin.NewHost([]plugin.Capability{a, b})
	sess := session.New(config.Default(), time.Now())

	host.Activate(context.Background(), sess)
	calls = nil

	if err := host.Teardown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 || calls[0] != "teardown:b" || calls[1] != "teardown:a" {
		t.Fatalf("got %v", calls)
	}

	calls = nil
	if err := host.Teardown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected teardown to be a no-op the second time, got %v", calls)
	}
}

func TestActivate_ReturnsErrorFromCapability(t *testing.T) {
	var calls []string
	failing := &recordingCapability{name: "bad", calls: &calls, activateErr: errors.New("boom")}
	host := plugin.NewHost([]plugin.Capability{failing})
	sess := session.New(config.Default(), time.Now())

	if err := host.Activate(context.Background(), sess); err == nil {
		t.Fatal("expected an error")
	}
}
