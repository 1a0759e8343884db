package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/v0xg/voiceassist/internal/platform"
	"github.com/v0xg/voiceassist/internal/platform/memtree"
	"github.com/v0xg/voiceassist/internal/prefs"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Gate, *memtree.Device, *prefs.Memory) {
	t.Helper()
	dev := memtree.NewDevice("com.voiceassist")
	for _, pkg := range []string{"com.a", "com.b"} {
		dev.Install(memtree.App{Package: pkg, Root: &memtree.Node{Text: pkg}})
	}
	dev.Install(memtree.App{Package: "com.android.settings", System: true, Root: &memtree.Node{}})
	dev.Install(memtree.App{Package: "com.android.chrome", System: true, UpdatedSystem: true, Root: &memtree.Node{}})
	if err := dev.Launch("com.a"); err != nil {
		t.Fatal(err)
	}
	store := prefs.NewMemory()
	return New(DefaultConfig(), dev, store, nil), dev, store
}

func state(pkg string, at time.Time) platform.Event {
	return platform.Event{Kind: platform.WindowStateChanged, Package: pkg, At: at}
}

func content(pkg string, at time.Time) platform.Event {
	return platform.Event{Kind: platform.WindowContentChanged, Package: pkg, At: at}
}

func TestDecide_StateDebounce(t *testing.T) {
	g, _, _ := setup(t)
	ctx := context.Background()

	v1 := g.Decide(ctx, state("com.a", t0))
	v2 := g.Decide(ctx, state("com.b", t0.Add(300*time.Millisecond)))
	if !v1.Accept || !v1.AppSwitch {
		t.Errorf("first: got %+v, want accepted app switch", v1)
	}
	if v2.Accept {
		t.Errorf("second within debounce: got %+v, want rejected", v2)
	}

	// The window is measured from the last accepted event, not the dropped one.
	v3 := g.Decide(ctx, state("com.b", t0.Add(600*time.Millisecond)))
	if !v3.Accept {
		t.Errorf("after debounce: got %+v, want accepted", v3)
	}
}

func TestDecide_DebounceAdvancesOnRejectedWindow(t *testing.T) {
	g, dev, _ := setup(t)
	ctx := context.Background()

	dev.SetWindows([]platform.Window{{Type: platform.WindowApplication, Active: true, Bounds: platform.Rect{Right: 80, Bottom: 80}}})
	if v := g.Decide(ctx, state("com.a", t0)); v.Accept {
		t.Fatalf("small window: got %+v, want rejected", v)
	}
	dev.SetWindows(nil)
	if v := g.Decide(ctx, state("com.a", t0.Add(200*time.Millisecond))); v.Reason != "debounced" {
		t.Errorf("got %+v, want debounced", v)
	}
}

func TestDecide_RealWindowCheck(t *testing.T) {
	full := platform.Rect{Right: 1080, Bottom: 2340}
	tests := []struct {
		name    string
		pkg     string
		windows []platform.Window
		want    bool
	}{
		{"user app", "com.a", nil, true},
		{"pure system app", "com.android.settings", nil, false},
		{"updated system app", "com.android.chrome", nil, true},
		{"unknown app", "com.unknown", nil, false},
		{"no windows", "com.a", []platform.Window{}, false},
		{"overlay only", "com.a", []platform.Window{{Type: platform.WindowOverlay, Active: true, Bounds: full}}, false},
		{"inactive app window", "com.a", []platform.Window{{Type: platform.WindowApplication, Bounds: full}}, false},
		{"dialog sized", "com.a", []platform.Window{{Type: platform.WindowApplication, Active: true, Bounds: platform.Rect{Right: 99, Bottom: 500}}}, false},
		{"minimum size", "com.a", []platform.Window{{Type: platform.WindowApplication, Active: true, Bounds: platform.Rect{Right: 100, Bottom: 100}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, dev, _ := setup(t)
			if tt.windows != nil {
				dev.SetWindows(tt.windows)
			}
			got := g.Decide(context.Background(), state(tt.pkg, t0))
			if got.Accept != tt.want {
				t.Errorf("Accept: got %v (%s), want %v", got.Accept, got.Reason, tt.want)
			}
		})
	}
}

type panickyPlatform struct{ *memtree.Device }

func (panickyPlatform) Windows(context.Context) ([]platform.Window, error) {
	panic("window manager died")
}

type failingPlatform struct{ *memtree.Device }

func (failingPlatform) Windows(context.Context) ([]platform.Window, error) {
	return nil, errors.New("binder gone")
}

func TestDecide_WindowCheckFailsClosed(t *testing.T) {
	dev := memtree.NewDevice("self")
	dev.Install(memtree.App{Package: "com.a", Root: &memtree.Node{}})
	for name, p := range map[string]platform.Platform{
		"panic": panickyPlatform{dev},
		"error": failingPlatform{dev},
	} {
		t.Run(name, func(t *testing.T) {
			g := New(DefaultConfig(), p, prefs.NewMemory(), nil)
			if v := g.Decide(context.Background(), state("com.a", t0)); v.Accept {
				t.Errorf("got %+v, want rejected", v)
			}
		})
	}
}

func TestDecide_IgnoredPackages(t *testing.T) {
	g, _, _ := setup(t)
	for _, pkg := range []string{"com.android.systemui", "android", "com.voiceassist", ""} {
		if v := g.Decide(context.Background(), state(pkg, t0)); v.Accept {
			t.Errorf("%q: accepted", pkg)
		}
	}
}

func TestDecide_ContentThrottle(t *testing.T) {
	g, _, store := setup(t)
	ctx := context.Background()
	if err := store.SetAppEnabled(ctx, "com.a", true); err != nil {
		t.Fatal(err)
	}

	accepted := 0
	for i := 0; i < 20; i++ {
		if g.Decide(ctx, content("com.a", t0.Add(time.Duration(i)*40*time.Millisecond))).Accept {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("burst within throttle: accepted %d, want 1", accepted)
	}

	if v := g.Decide(ctx, content("com.a", t0.Add(1500*time.Millisecond))); !v.Accept {
		t.Errorf("after throttle: got %+v, want accepted", v)
	}
}

func TestDecide_ContentRequiresEnabledApp(t *testing.T) {
	g, _, _ := setup(t)
	if v := g.Decide(context.Background(), content("com.a", t0)); v.Accept {
		t.Errorf("disabled app: got %+v, want rejected", v)
	}
}

func TestDecide_StateChangeMarksAnalysis(t *testing.T) {
	g, _, store := setup(t)
	ctx := context.Background()
	if err := store.SetAppEnabled(ctx, "com.a", true); err != nil {
		t.Fatal(err)
	}

	if v := g.Decide(ctx, state("com.a", t0)); !v.Accept {
		t.Fatalf("state: got %+v", v)
	}
	if v := g.Decide(ctx, content("com.a", t0.Add(500*time.Millisecond))); v.Accept {
		t.Errorf("content right after app switch: got %+v, want throttled", v)
	}
}

func TestDecide_ViewEventsNeverExtract(t *testing.T) {
	g, _, store := setup(t)
	ctx := context.Background()
	_ = store.SetAppEnabled(ctx, "com.a", true)
	for _, kind := range []platform.EventKind{platform.ViewFocused, platform.ViewClicked} {
		if v := g.Decide(ctx, platform.Event{Kind: kind, Package: "com.a", At: t0}); v.Accept {
			t.Errorf("%v: accepted", kind)
		}
	}
}
