// Package browser is a platform.Platform backed by a Chromium page driven
// through rod. Each site is treated as an app: its package name is the
// reversed host, the DOM is the UI tree and page navigations are window
// state changes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/v0xg/voiceassist/internal/platform"
)

// SelfPackage is the package name the assistant reports for itself.
const SelfPackage = "com.voiceassist"

const bindingName = "__voiceassist_changed"

// Options configures the browser.
type Options struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Headless   bool   `yaml:"headless"`
	Stealth    bool   `yaml:"stealth"`
	ProfileDir string `yaml:"profile_dir"` // Chrome/Chromium profile directory for authenticated sessions
	// Timeout bounds navigation and the initial load.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultOptions returns a phone-sized headless viewport.
func DefaultOptions() Options {
	return Options{Width: 412, Height: 915, Headless: true, Stealth: true, Timeout: 30 * time.Second}
}

// Browser wraps the rod browser and the single page the assistant drives.
type Browser struct {
	opts    Options
	log     *slog.Logger
	browser *rod.Browser
	page    *rod.Page

	events chan platform.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	lastPkg string
}

// Launch starts Chromium, opens rawURL and begins forwarding page events.
func Launch(ctx context.Context, rawURL string, opts Options, log *slog.Logger) (*Browser, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	path, _ := launcher.LookPath()
	l := launcher.New().Bin(path).Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	var page *rod.Page
	if opts.Stealth {
		page, err = stealth.Page(rb)
	} else {
		page, err = rb.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		rb.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
		Mobile:            true,
	}); err != nil {
		log.Warn("browser: set viewport failed", "error", err)
	}

	bctx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		opts:    opts,
		log:     log,
		browser: rb,
		page:    page,
		events:  make(chan platform.Event, 64),
		ctx:     bctx,
		cancel:  cancel,
	}
	if err := b.watch(); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.Navigate(ctx, rawURL); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Navigate opens rawURL in the page and waits for it to settle.
func (b *Browser) Navigate(ctx context.Context, rawURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	page := b.page.Context(navCtx)
	if err := page.Navigate(rawURL); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", rawURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		b.log.Warn("browser: wait load timeout", "url", rawURL, "error", err)
	}
	// Don't hang on persistent connections.
	b.page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	return nil
}

// Close stops event forwarding and shuts the browser down.
func (b *Browser) Close() {
	b.cancel()
	b.wg.Wait()
	if b.page != nil {
		b.page.Close()
	}
	if b.browser != nil {
		b.browser.Close()
	}
	close(b.events)
}

// Events implements platform.EventSource.
func (b *Browser) Events() <-chan platform.Event { return b.events }

// SelfPackage implements platform.Platform.
func (b *Browser) SelfPackage() string { return SelfPackage }

func (b *Browser) currentURL() (string, error) {
	info, err := b.page.Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

// ActiveRoot implements platform.Platform. The root is the document body.
func (b *Browser) ActiveRoot(ctx context.Context) (platform.Node, error) {
	rawURL, err := b.currentURL()
	if err != nil {
		return nil, err
	}
	el, err := b.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element("body")
	if err != nil {
		var nf *rod.ElementNotFoundError
		if errors.As(err, &nf) {
			return nil, platform.ErrNoActiveWindow
		}
		return nil, fmt.Errorf("browser: active root: %w", err)
	}
	return acquire(ctx, el, PackageFromURL(rawURL))
}

// Windows implements platform.Platform. The page is the only window.
func (b *Browser) Windows(ctx context.Context) ([]platform.Window, error) {
	rawURL, err := b.currentURL()
	if err != nil {
		return nil, err
	}
	return []platform.Window{{
		Type:    platform.WindowApplication,
		Active:  true,
		Package: PackageFromURL(rawURL),
		Bounds:  platform.Rect{Right: b.opts.Width, Bottom: b.opts.Height},
	}}, nil
}

// AppInfo implements platform.Platform. Browser-internal pages count as
// system apps.
func (b *Browser) AppInfo(ctx context.Context, pkg string) (platform.AppInfo, error) {
	info := platform.AppInfo{Package: pkg, Label: pkg, System: IsSystemPackage(pkg)}
	rawURL, err := b.currentURL()
	if err == nil && PackageFromURL(rawURL) == pkg {
		if t, err := b.page.Context(ctx).Eval(`() => document.title`); err == nil && t.Value.Str() != "" {
			info.Label = t.Value.Str()
		}
	}
	return info, nil
}

// watch forwards frame navigations as window state changes and DOM
// mutations, reported by an injected observer, as content changes.
func (b *Browser) watch() error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(b.page); err != nil {
		return fmt.Errorf("browser: add binding: %w", err)
	}
	if _, err := b.page.EvalOnNewDocument("(" + observerJS + ")()"); err != nil {
		return fmt.Errorf("browser: install observer: %w", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.page.Context(b.ctx).EachEvent(
			func(e *proto.PageFrameNavigated) {
				if e.Frame.ParentID != "" {
					return
				}
				pkg := PackageFromURL(e.Frame.URL)
				b.mu.Lock()
				b.lastPkg = pkg
				b.mu.Unlock()
				b.emit(platform.WindowStateChanged, pkg)
			},
			func(e *proto.RuntimeBindingCalled) {
				if e.Name != bindingName {
					return
				}
				b.mu.Lock()
				pkg := b.lastPkg
				b.mu.Unlock()
				b.emit(platform.WindowContentChanged, pkg)
			},
		)()
	}()
	return nil
}

func (b *Browser) emit(kind platform.EventKind, pkg string) {
	select {
	case b.events <- platform.Event{Kind: kind, Package: pkg, At: time.Now()}:
	default:
		b.log.Debug("browser: event dropped", "kind", kind, "package", pkg)
	}
}

// observerJS batches DOM mutations and reports them through the binding.
const observerJS = `() => {
	if (window.__voiceassistObserver) return;
	let pending = null;
	window.__voiceassistObserver = new MutationObserver(() => {
		if (pending) return;
		pending = setTimeout(() => {
			pending = null;
			if (window.` + bindingName + `) window.` + bindingName + `('');
		}, 100);
	});
	const start = () => window.__voiceassistObserver.observe(document.documentElement,
		{childList: true, subtree: true, characterData: true});
	if (document.documentElement) start();
	else document.addEventListener('DOMContentLoaded', start);
}`

// PackageFromURL maps a URL to an app package name: the host reversed
// without a leading www, so https://www.example.com/x is com.example.
// Browser-internal schemes map under "system.".
func PackageFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return ""
	}
	switch u.Scheme {
	case "about", "chrome", "chrome-error", "devtools", "edge":
		name := u.Host
		if name == "" {
			name = u.Opaque
		}
		if name == "" {
			name = "blank"
		}
		return "system." + strings.ToLower(name)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return ""
	}
	parts := strings.Split(host, ".")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// IsSystemPackage reports whether pkg names a browser-internal page.
func IsSystemPackage(pkg string) bool {
	return strings.HasPrefix(pkg, "system.")
}
