// Package gate decides which UI-change notifications are worth a fresh
// screen extraction.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/v0xg/voiceassist/internal/platform"
	"github.com/v0xg/voiceassist/internal/prefs"
)

// DefaultIgnoredPackages are system surfaces whose notifications never
// describe a user app.
var DefaultIgnoredPackages = []string{
	"com.android.systemui",
	"com.google.android.gms",
	"com.android.launcher3",
	"com.android.inputmethod",
	"com.google.android.inputmethod",
	"com.sec.android.inputmethod",
	"android",
}

// Config holds the gate's timing and filtering parameters.
type Config struct {
	// Debounce drops a WindowStateChanged arriving this soon after the
	// previous accepted one, whatever its package.
	Debounce time.Duration `yaml:"debounce"`
	// Throttle bounds content-change extractions to one per interval.
	Throttle time.Duration `yaml:"throttle"`
	// IgnoredPackages are never processed. The platform's own package is
	// always added.
	IgnoredPackages []string `yaml:"ignored_packages"`
	// MinWindowWidth and MinWindowHeight reject smaller windows as dialogs
	// or toasts.
	MinWindowWidth  int `yaml:"min_window_width"`
	MinWindowHeight int `yaml:"min_window_height"`
}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{
		Debounce:        500 * time.Millisecond,
		Throttle:        1000 * time.Millisecond,
		IgnoredPackages: append([]string(nil), DefaultIgnoredPackages...),
		MinWindowWidth:  100,
		MinWindowHeight: 100,
	}
}

// Verdict is the outcome of Decide.
type Verdict struct {
	// Accept is set when the event should trigger an extraction.
	Accept bool
	// AppSwitch is set for accepted WindowStateChanged events.
	AppSwitch bool
	Reason    string
}

func reject(reason string) Verdict { return Verdict{Reason: reason} }

// Gate filters UI-change notifications. Decide is called from the
// platform's event goroutine; the lock only covers the two timestamps.
type Gate struct {
	cfg     Config
	p       platform.Platform
	prefs   prefs.Store
	log     *slog.Logger
	ignored map[string]struct{}
	now     func() time.Time

	mu           sync.Mutex
	lastState    time.Time
	lastAnalysis time.Time
}

// New creates a Gate.
func New(cfg Config, p platform.Platform, store prefs.Store, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	ignored := make(map[string]struct{}, len(cfg.IgnoredPackages)+1)
	for _, pkg := range cfg.IgnoredPackages {
		ignored[pkg] = struct{}{}
	}
	if self := p.SelfPackage(); self != "" {
		ignored[self] = struct{}{}
	}
	return &Gate{
		cfg:     cfg,
		p:       p,
		prefs:   store,
		log:     log,
		ignored: ignored,
		now:     time.Now,
	}
}

// Ignored reports whether pkg is filtered out unconditionally.
func (g *Gate) Ignored(pkg string) bool {
	_, ok := g.ignored[pkg]
	return ok
}

// Decide classifies one notification.
func (g *Gate) Decide(ctx context.Context, ev platform.Event) Verdict {
	if ev.Package == "" {
		return reject("no package")
	}
	if g.Ignored(ev.Package) {
		return reject("ignored package")
	}
	at := ev.At
	if at.IsZero() {
		at = g.now()
	}

	switch ev.Kind {
	case platform.WindowStateChanged:
		return g.decideState(ctx, ev.Package, at)
	case platform.WindowContentChanged:
		return g.decideContent(ctx, ev.Package, at)
	default:
		return reject("view event")
	}
}

func (g *Gate) decideState(ctx context.Context, pkg string, at time.Time) Verdict {
	g.mu.Lock()
	if !g.lastState.IsZero() && at.Sub(g.lastState) < g.cfg.Debounce {
		g.mu.Unlock()
		return reject("debounced")
	}
	g.lastState = at
	g.mu.Unlock()

	if err := g.checkRealWindow(ctx, pkg); err != nil {
		g.log.Debug("gate: not a real app window", "package", pkg, "error", err)
		return reject("not a real app window")
	}

	g.mu.Lock()
	g.lastAnalysis = at
	g.mu.Unlock()
	return Verdict{Accept: true, AppSwitch: true, Reason: "app switch"}
}

func (g *Gate) decideContent(ctx context.Context, pkg string, at time.Time) Verdict {
	enabled, err := g.prefs.IsAppEnabled(ctx, pkg)
	if err != nil {
		g.log.Warn("gate: preference lookup failed", "package", pkg, "error", err)
		return reject("preference lookup failed")
	}
	if !enabled {
		return reject("app not enabled")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lastAnalysis.IsZero() && at.Sub(g.lastAnalysis) < g.cfg.Throttle {
		return reject("throttled")
	}
	g.lastAnalysis = at
	return Verdict{Accept: true, Reason: "content change"}
}

// checkRealWindow fails closed: any error or panic from the platform is a
// rejection.
func (g *Gate) checkRealWindow(ctx context.Context, pkg string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gate: window check panic: %v", r)
		}
	}()

	windows, err := g.p.Windows(ctx)
	if err != nil {
		return fmt.Errorf("gate: windows: %w", err)
	}
	var active *platform.Window
	for i := range windows {
		if windows[i].Type == platform.WindowApplication && windows[i].Active {
			active = &windows[i]
			break
		}
	}
	if active == nil {
		return fmt.Errorf("gate: %w", platform.ErrNoActiveWindow)
	}
	if w, h := active.Bounds.Width(), active.Bounds.Height(); w < g.cfg.MinWindowWidth || h < g.cfg.MinWindowHeight {
		return fmt.Errorf("gate: window too small (%dx%d)", w, h)
	}

	info, err := g.p.AppInfo(ctx, pkg)
	if err != nil {
		return fmt.Errorf("gate: app info: %w", err)
	}
	if info.System && !info.UpdatedSystem {
		return fmt.Errorf("gate: %s is a system app", pkg)
	}
	return nil
}
