// Command clarity-agent runs the in-page telemetry agent against either a
// scripted in-memory document (-demo) or a real Chrome target (-url).
//
// Usage:
//
//	clarity-agent -config agent.yaml           # observe per a YAML config
//	clarity-agent -url https://example.com     # single page, stdout sink
//	clarity-agent -demo                        # scripted document, no browser
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/clarity-agent/pkg/batcher"
	"github.com/hazyhaar/clarity-agent/pkg/config"
	"github.com/hazyhaar/clarity-agent/pkg/domtree"
	"github.com/hazyhaar/clarity-agent/pkg/layout"
	"github.com/hazyhaar/clarity-agent/pkg/livedom"
	"github.com/hazyhaar/clarity-agent/pkg/livedom/memdom"
	"github.com/hazyhaar/clarity-agent/pkg/livedom/roddom"
	"github.com/hazyhaar/clarity-agent/pkg/pipeline"
	"github.com/hazyhaar/clarity-agent/pkg/plugin"
	"github.com/hazyhaar/clarity-agent/pkg/plugin/refplugins"
	"github.com/hazyhaar/clarity-agent/pkg/session"
	"github.com/hazyhaar/clarity-agent/pkg/sink"
	"github.com/hazyhaar/clarity-agent/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to agent.yaml config file")
	targetURL := flag.String("url", "", "observe a single URL via a real browser (stdout sink)")
	demo := flag.Bool("demo", false, "run against a scripted in-memory document, no browser")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *targetURL, *demo); err != nil {
		logger.Error("clarity-agent: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, targetURL string, demo bool) error {
	switch {
	case configPath != "":
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runAgent(ctx, logger, *cfg, "")
	case targetURL != "":
		cfg := config.Default()
		return runAgent(ctx, logger, cfg, targetURL)
	case demo:
		cfg := config.Default()
		return runDemo(ctx, logger, cfg)
	default:
		fmt.Fprintln(os.Stderr, "usage: clarity-agent -config <file> | -url <url> | -demo")
		os.Exit(1)
		return nil
	}
}

// runAgent wires the full pipeline against a real Chrome target: browser
// manager, roddom document, layout tracker, event pipeline, batcher, and
// whatever sinks cfg names.
func runAgent(ctx context.Context, logger *slog.Logger, cfg config.Config, url string) error {
	var stealth roddom.StealthLevel
	switch cfg.Browser.Stealth {
	case "stealth":
		stealth = roddom.LevelStealth
	case "headful":
		stealth = roddom.LevelHeadful
	default:
		stealth = roddom.LevelHeadless
	}

	mgr := roddom.NewBrowserManager(roddom.BrowserConfig{
		RemoteURL:       cfg.Browser.Remote,
		Stealth:         stealth,
		MemoryLimit:     cfg.Browser.MemoryLimit,
		RecycleInterval: cfg.Browser.RecycleTime,
		Logger:          logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	page, err := mgr.NewPage("")
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}

	doc, err := roddom.Open(page, url, logger)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	sess := session.New(cfg, time.Now())
	router := buildSinks(cfg.Sinks, logger)
	defer router.Close()

	bat, err := newBatcher(ctx, sess, cfg, router, logger)
	if err != nil {
		return err
	}
	pl := pipeline.New(sess, bat, func() float64 { return sess.ElapsedMillis(time.Now()) })

	tracker := layout.New(layoutConfig(doc, cfg, pl, logger))
	host := plugin.NewHost([]plugin.Capability{
		tracker,
		refplugins.NewViewportPlugin(pl, doc),
		refplugins.NewJsErrorPlugin(pl),
	}, plugin.WithLogger(logger))

	if err := host.Activate(ctx, sess); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	defer host.Teardown(ctx)

	// Backfill proceeds in cfg.TimeToYield slices rather than blocking here;
	// mutation batches that arrive mid-backfill are queued by the tracker
	// itself, so the loop below starts consuming them immediately.
	backfillDone := driveBackfill(ctx, tracker, cfg.TimeToYield)

	mutations := doc.WatchMutations(ctx)
	for {
		select {
		case <-ctx.Done():
			bat.ForceCompression(sess.ElapsedMillis(time.Now()))
			return nil
		case err := <-backfillDone:
			if err != nil && err != context.Canceled {
				logger.Error("clarity-agent: backfill failed", "error", err)
			}
			backfillDone = nil
		case batch, ok := <-mutations:
			if !ok {
				return nil
			}
			if err := tracker.HandleMutationBatch(batch); err != nil {
				logger.Error("clarity-agent: mutation batch rejected", "error", err)
			}
		}
	}
}

// driveBackfill runs the tracker's backfill queue cooperatively: each call
// to RunBackfillSlice is budgeted to yield duration, and when a slice
// leaves work queued the next one is scheduled after another yield-length
// pause rather than looping immediately, so backfill never monopolizes the
// goroutine that would otherwise be classifying live mutation batches. The
// returned channel receives the terminal error (nil on success) exactly
// once, when the queue has fully drained or ctx is canceled.
func driveBackfill(ctx context.Context, tracker *layout.Tracker, yield time.Duration) <-chan error {
	done := make(chan error, 1)
	var step func()
	step = func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		finished, err := tracker.RunBackfillSlice(time.Now().Add(yield))
		if err != nil {
			done <- err
			return
		}
		if finished {
			done <- nil
			return
		}
		time.AfterFunc(yield, step)
	}
	go step()
	return done
}

// runDemo drives the tracker against a scripted memdom document — useful
// for exercising the whole pipeline without a browser.
func runDemo(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	doc := memdom.NewDocument("html")
	root := doc.Root().(*memdom.Element)
	body := doc.CreateElement("body")
	doc.AppendChild(root, body)

	sess := session.New(cfg, time.Now())
	sinks := []config.SinkConfig{{Type: "stdout"}}
	router := buildSinks(sinks, logger)
	defer router.Close()

	bat, err := newBatcher(ctx, sess, cfg, router, logger)
	if err != nil {
		return err
	}
	pl := pipeline.New(sess, bat, func() float64 { return sess.ElapsedMillis(time.Now()) })

	tracker := layout.New(layoutConfig(doc, cfg, pl, logger))
	host := plugin.NewHost([]plugin.Capability{tracker}, plugin.WithLogger(logger))

	if err := host.Activate(ctx, sess); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	defer host.Teardown(ctx)

	select {
	case err := <-driveBackfill(ctx, tracker, cfg.TimeToYield):
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	div := doc.CreateElement("div")
	doc.AppendChild(body, div)
	doc.SetAttribute(div, "class", "widget")
	if err := tracker.HandleMutationBatch(doc.DrainMutations()); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}

	bat.ForceCompression(sess.ElapsedMillis(time.Now()))
	return nil
}

func layoutConfig(doc livedom.Document, cfg config.Config, pl *pipeline.Pipeline, logger *slog.Logger) layout.Config {
	return layout.Config{
		Document:            doc,
		TimeToYield:         cfg.TimeToYield,
		ValidateConsistency: cfg.ValidateConsistency,
		Logger:              logger,
		OnLayoutEvent: func(state domtree.LayoutState) {
			pl.AddEvent(telemetry.OriginLayout, "layout", state.ToEventData())
		},
		OnInstrument: func(kind telemetry.InstrumentationKind, data map[string]any) {
			pl.Instrument(kind, data)
		},
	}
}

func newBatcher(ctx context.Context, sess *session.Session, cfg config.Config, router *sink.Router, logger *slog.Logger) (*batcher.Batcher, error) {
	metadata := map[string]any{"uploadUrl": cfg.UploadURL}
	return batcher.New(sess.ImpressionID, cfg.BatchLimit, metadata, func(cb batcher.CompressedBatch) {
		if err := router.Send(ctx, cb); err != nil {
			logger.Error("clarity-agent: sink send failed", "error", err)
		}
	})
}

func buildSinks(configs []config.SinkConfig, logger *slog.Logger) *sink.Router {
	var sinks []sink.Sink
	for _, sc := range configs {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, sink.NewStdout(os.Stdout))
		case "webhook":
			sinks = append(sinks, sink.NewWebhook(sc.URL, sink.WithWebhookLogger(logger)))
		default:
			logger.Warn("clarity-agent: unknown sink type", "type", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, sink.NewStdout(os.Stdout))
	}
	return sink.NewRouter(logger, sinks...)
}
