// Package assist drives automatic screen announcements from per-app
// policy.
package assist

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/v0xg/voiceassist/internal/platform"
	"github.com/v0xg/voiceassist/internal/prefs"
	"github.com/v0xg/voiceassist/internal/screen"
	"github.com/v0xg/voiceassist/internal/speech"
)

// Config holds the controller's timing parameters.
type Config struct {
	// SettleDelay is how long an always-on app gets to finish loading
	// before its screen is announced.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// Cooldown suppresses repeat announcements of the same app.
	Cooldown time.Duration `yaml:"cooldown"`
	// EmptyRetryDelay is the wait before re-reading an empty snapshot.
	EmptyRetryDelay time.Duration `yaml:"empty_retry_delay"`
	// MaxOptions caps the clickable elements named in an announcement.
	MaxOptions int `yaml:"max_options"`
}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{
		SettleDelay:     1500 * time.Millisecond,
		Cooldown:        3000 * time.Millisecond,
		EmptyRetryDelay: 1000 * time.Millisecond,
		MaxOptions:      5,
	}
}

// State is the controller state for the foreground app.
type State int

const (
	Idle State = iota
	NotEligible
	AlwaysOnPending
	OnDemandWaiting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case NotEligible:
		return "not_eligible"
	case AlwaysOnPending:
		return "always_on_pending"
	case OnDemandWaiting:
		return "on_demand_waiting"
	default:
		return "unknown"
	}
}

// Controller decides whether and when to announce the foreground screen.
type Controller struct {
	cfg     Config
	p       platform.Platform
	prefs   prefs.Store
	store   *screen.Store
	speaker speech.Speaker
	log     *slog.Logger
	now     func() time.Time

	base   context.Context
	cancel context.CancelFunc

	reading atomic.Bool

	mu          sync.Mutex
	current     string
	state       State
	gen         uint64
	timer       *time.Timer
	lastReadPkg string
	lastRead    time.Time
}

// New creates a Controller.
func New(cfg Config, p platform.Platform, store prefs.Store, screens *screen.Store, speaker speech.Speaker, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:     cfg,
		p:       p,
		prefs:   store,
		store:   screens,
		speaker: speaker,
		log:     log,
		now:     time.Now,
		base:    base,
		cancel:  cancel,
	}
}

// Current returns the foreground package and its state.
func (c *Controller) Current() (string, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.state
}

// OnAppSwitch handles a foreground change to pkg. A repeated notification
// for the current package changes nothing. A real switch cancels any
// pending announcement and resets the cooldown before the new package's
// policy is applied.
func (c *Controller) OnAppSwitch(ctx context.Context, pkg string) State {
	c.mu.Lock()
	if pkg == c.current {
		st := c.state
		c.mu.Unlock()
		return st
	}
	c.log.Debug("assist: app switch", "from", c.current, "to", pkg)
	c.current = pkg
	c.state = Idle
	c.lastReadPkg = ""
	c.lastRead = time.Time{}
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	policy := prefs.Lookup(ctx, c.log, c.prefs, pkg)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// Another switch overtook the policy lookup.
		return c.state
	}
	switch {
	case !policy.Active():
		c.state = NotEligible
	case policy.Mode == prefs.ModeAlwaysOn:
		c.state = AlwaysOnPending
		c.timer = time.AfterFunc(c.cfg.SettleDelay, func() { c.fire(gen, pkg) })
	default:
		c.state = OnDemandWaiting
	}
	c.log.Info("assist: policy applied", "package", pkg, "enabled", policy.Enabled, "mode", policy.Mode, "state", c.state)
	return c.state
}

func (c *Controller) fire(gen uint64, pkg string) {
	c.mu.Lock()
	base := c.base
	if gen != c.gen || base.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	c.read(base, pkg, func() bool { return c.isGen(gen) })
}

func (c *Controller) isGen(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Trigger announces the current package on request, bypassing its mode.
func (c *Controller) Trigger(ctx context.Context) bool {
	c.mu.Lock()
	pkg := c.current
	c.mu.Unlock()
	if pkg == "" {
		return false
	}
	return c.AutoRead(ctx, pkg)
}

// AutoRead announces the screen of pkg. Only one announcement runs at a
// time; a request arriving meanwhile is dropped. Repeat announcements of
// the same package within the cooldown are suppressed. It reports whether
// an utterance was handed to the speaker.
func (c *Controller) AutoRead(ctx context.Context, pkg string) bool {
	return c.read(ctx, pkg, nil)
}

// read is AutoRead with an optional liveness check, consulted last before
// speaking. A timer-driven read passes one so a switch made meanwhile wins.
func (c *Controller) read(ctx context.Context, pkg string, live func() bool) bool {
	if !c.reading.CompareAndSwap(false, true) {
		c.log.Debug("assist: announcement in progress, dropping", "package", pkg)
		return false
	}
	defer c.reading.Store(false)

	started := c.now()
	c.mu.Lock()
	cooling := pkg == c.lastReadPkg && started.Sub(c.lastRead) < c.cfg.Cooldown
	c.mu.Unlock()
	if cooling {
		c.log.Debug("assist: cooldown active", "package", pkg)
		return false
	}

	snap := c.snapshotFor(pkg)
	if snap == nil {
		c.log.Debug("assist: no screen yet, retrying", "package", pkg, "delay", c.cfg.EmptyRetryDelay)
		if !sleep(ctx, c.cfg.EmptyRetryDelay) {
			return false
		}
		if snap = c.snapshotFor(pkg); snap == nil {
			c.log.Warn("assist: still no screen elements after retry", "package", pkg)
			return false
		}
	}

	text := Announcement(c.appName(ctx, pkg), snap, c.cfg.MaxOptions)
	if live != nil && !live() {
		c.log.Debug("assist: switched away before announcing", "package", pkg)
		return false
	}
	if _, err := c.speaker.Speak(ctx, text); err != nil {
		c.log.Warn("assist: speak failed", "package", pkg, "error", err)
		return false
	}

	c.mu.Lock()
	c.lastReadPkg = pkg
	c.lastRead = started
	c.mu.Unlock()
	c.log.Info("assist: announced", "package", pkg, "elements", len(snap.Elements))
	return true
}

// snapshotFor returns the latest snapshot if it has elements and belongs to
// pkg.
func (c *Controller) snapshotFor(pkg string) *screen.Snapshot {
	snap, ok := c.store.Current()
	if !ok || snap.Empty() || snap.Package != pkg {
		return nil
	}
	return snap
}

func (c *Controller) appName(ctx context.Context, pkg string) string {
	if info, err := c.p.AppInfo(ctx, pkg); err == nil && info.Label != "" {
		return info.Label
	}
	return AppNameFromPackage(pkg)
}

// Close cancels any pending announcement. Timers stay dead until Reset.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	c.stopTimerLocked()
	c.gen++
}

// Reset forgets the foreground app and its cooldown and re-arms the
// controller after Close. The next OnAppSwitch is always a real switch.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel()
	c.stopTimerLocked()
	c.base, c.cancel = context.WithCancel(context.Background())
	c.gen++
	c.current = ""
	c.state = Idle
	c.lastReadPkg = ""
	c.lastRead = time.Time{}
}

// AppNameFromPackage is the last dot-separated segment of pkg, or "App".
func AppNameFromPackage(pkg string) string {
	if i := strings.LastIndexByte(pkg, '.'); i >= 0 {
		pkg = pkg[i+1:]
	}
	if pkg == "" {
		return "App"
	}
	return pkg
}

// Announcement composes the app-opened utterance naming up to max
// clickable elements with text.
func Announcement(appName string, snap *screen.Snapshot, max int) string {
	var options []string
	for _, e := range snap.Elements {
		if len(options) >= max {
			break
		}
		if e.Clickable && e.Text != "" {
			options = append(options, e.Text)
		}
	}
	if len(options) == 0 {
		return appName + " opened"
	}
	return appName + " opened. Available options: " + strings.Join(options, ", ")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
