// Package roddom is the real live-document backend: it drives an actual
// Chrome target via go-rod (optionally wrapped in go-rod/stealth) and
// implements pkg/livedom over the Chrome DevTools Protocol's DOM domain,
// so the Shadow DOM Mirror and Layout Tracker run unmodified against a
// real page instead of pkg/livedom/memdom.
package roddom

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// StealthLevel controls how aggressively the browser hides its
// automation fingerprint (spec.md §6 doesn't name this option directly;
// it is carried over from the corpus's browser-lifecycle stack as an
// ambient deployment concern).
type StealthLevel int

const (
	LevelHeadless StealthLevel = iota
	LevelHeadful
	LevelStealth
)

// BrowserConfig configures the Chrome connection.
type BrowserConfig struct {
	RemoteURL       string // empty: launch a local Chrome via launcher
	Stealth         StealthLevel
	MemoryLimit     int64
	RecycleInterval time.Duration
	Logger          *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserManager owns a Chrome process (or a connection to a remote one)
// and recycles it on a time or memory budget, mirroring the domwatch
// browser manager's crash-recovery contract.
type BrowserManager struct {
	cfg     BrowserConfig
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewBrowserManager creates a manager. Call Start to launch Chrome.
func NewBrowserManager(cfg BrowserConfig) *BrowserManager {
	cfg.defaults()
	return &BrowserManager{cfg: cfg}
}

// Start launches (or connects to) Chrome and begins the recycle monitor.
func (m *BrowserManager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("roddom: browser manager is closed")
	}
	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	go m.monitorLoop(ctx)
	return b, nil
}

// Browser returns the current browser handle.
func (m *BrowserManager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Close shuts Chrome down.
func (m *BrowserManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanupLocked()
}

func (m *BrowserManager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.RemoteURL != "" {
		b := rod.New().ControlURL(m.cfg.RemoteURL)
		if err := b.Connect(); err != nil {
			return nil, fmt.Errorf("roddom: connect: %w", err)
		}
		log.Info("roddom: connected to remote browser", "url", m.cfg.RemoteURL)
		return b, nil
	}

	l := launcher.New().Headless(m.cfg.Stealth != LevelHeadful)
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("roddom: launch: %w", err)
	}
	m.lnch = l

	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("roddom: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("roddom: ignore cert errors failed", "error", err)
	}
	log.Info("roddom: launched local chrome", "stealth", m.cfg.Stealth)
	return b, nil
}

// NewPage opens a page. When Stealth is LevelStealth it uses
// go-rod/stealth so automation indicators (navigator.webdriver, etc.) are
// patched before any page script runs.
func (m *BrowserManager) NewPage(url string) (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("roddom: browser not started")
	}
	if m.cfg.Stealth == LevelStealth {
		return stealth.Page(b)
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("roddom: new page: %w", err)
	}
	if url != "" {
		if err := page.Navigate(url); err != nil {
			return nil, fmt.Errorf("roddom: navigate: %w", err)
		}
	}
	return page, nil
}

func (m *BrowserManager) cleanupLocked() error {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}

func (m *BrowserManager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			closed, startAt, b := m.closed, m.startAt, m.browser
			m.mu.RUnlock()
			if closed || b == nil {
				return
			}
			if time.Since(startAt) > m.cfg.RecycleInterval {
				log.Info("roddom: recycle interval reached, recycling browser")
				if err := m.recycle(); err != nil {
					log.Error("roddom: recycle failed", "error", err)
				}
				continue
			}
			if used, err := jsHeapUsage(b); err == nil && used > m.cfg.MemoryLimit {
				log.Info("roddom: memory limit exceeded, recycling browser", "used", used)
				if err := m.recycle(); err != nil {
					log.Error("roddom: recycle failed", "error", err)
				}
			}
		}
	}
}

func (m *BrowserManager) recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.cleanupLocked(); err != nil {
		return err
	}
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()
	return nil
}

func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, fmt.Errorf("roddom: no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
