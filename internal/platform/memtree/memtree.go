// Package memtree is an in-memory accessibility platform. Apps are plain
// node trees; every acquired handle is counted so callers can assert that
// traversals release what they borrow.
package memtree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/v0xg/voiceassist/internal/platform"
)

// ErrUnknownApp is returned by AppInfo for packages never installed.
var ErrUnknownApp = errors.New("memtree: unknown app")

// DefaultScreen is the window size used when an app declares none.
var DefaultScreen = platform.Rect{Right: 1080, Bottom: 2340}

// Node is one element of an app's UI tree.
type Node struct {
	Text       string        `yaml:"text"`
	Desc       string        `yaml:"desc"`
	Class      string        `yaml:"class"`
	ViewID     string        `yaml:"id"`
	Bounds     platform.Rect `yaml:"bounds"`
	Clickable  bool          `yaml:"clickable"`
	Editable   bool          `yaml:"editable"`
	Focusable  bool          `yaml:"focusable"`
	Checkable  bool          `yaml:"checkable"`
	Scrollable bool          `yaml:"scrollable"`
	Children   []*Node       `yaml:"children"`

	// FailChildren makes every Child call on this node fail with
	// platform.ErrStaleNode.
	FailChildren bool `yaml:"-"`
}

// App is an installed application.
type App struct {
	Package       string        `yaml:"package"`
	Label         string        `yaml:"label"`
	System        bool          `yaml:"system"`
	UpdatedSystem bool          `yaml:"updated_system"`
	Bounds        platform.Rect `yaml:"bounds"`
	Root          *Node         `yaml:"root"`
}

// Performed records an action run against a node.
type Performed struct {
	Action platform.Action
	Text   string
	Arg    string
	OK     bool
}

// Device is a fake phone: a set of installed apps, one of which is in the
// foreground.
type Device struct {
	self string

	mu         sync.Mutex
	apps       map[string]*App
	foreground string
	windows    []platform.Window
	rootErr    error
	performed  []Performed

	live     atomic.Int64
	acquired atomic.Int64

	events chan platform.Event
	now    func() time.Time
}

// NewDevice creates an empty device. self is the assistant's own package.
func NewDevice(self string) *Device {
	return &Device{
		self:   self,
		apps:   make(map[string]*App),
		events: make(chan platform.Event, 64),
		now:    time.Now,
	}
}

// Install adds or replaces an app.
func (d *Device) Install(app App) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if app.Bounds == (platform.Rect{}) {
		app.Bounds = DefaultScreen
	}
	d.apps[app.Package] = &app
}

// Launch brings pkg to the foreground and emits WindowStateChanged.
func (d *Device) Launch(pkg string) error {
	d.mu.Lock()
	if _, ok := d.apps[pkg]; !ok {
		d.mu.Unlock()
		return fmt.Errorf("memtree: launch %s: %w", pkg, ErrUnknownApp)
	}
	d.foreground = pkg
	d.mu.Unlock()

	d.emit(platform.WindowStateChanged, pkg)
	return nil
}

// Replace swaps the foreground app's tree and emits WindowContentChanged.
func (d *Device) Replace(root *Node) {
	d.mu.Lock()
	pkg := d.foreground
	if app, ok := d.apps[pkg]; ok {
		app.Root = root
	}
	d.mu.Unlock()

	if pkg != "" {
		d.emit(platform.WindowContentChanged, pkg)
	}
}

// Foreground returns the package currently in front.
func (d *Device) Foreground() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground
}

// SetWindows overrides the window list. nil restores the derived list.
func (d *Device) SetWindows(ws []platform.Window) {
	d.mu.Lock()
	d.windows = ws
	d.mu.Unlock()
}

// SetRootError makes ActiveRoot fail with err until cleared with nil.
func (d *Device) SetRootError(err error) {
	d.mu.Lock()
	d.rootErr = err
	d.mu.Unlock()
}

// Outstanding is the number of handles acquired and not yet released.
func (d *Device) Outstanding() int64 { return d.live.Load() }

// Acquired is the total number of handles ever handed out.
func (d *Device) Acquired() int64 { return d.acquired.Load() }

// Performed returns the actions run so far.
func (d *Device) Performed() []Performed {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Performed(nil), d.performed...)
}

// Events implements platform.EventSource.
func (d *Device) Events() <-chan platform.Event { return d.events }

func (d *Device) emit(kind platform.EventKind, pkg string) {
	select {
	case d.events <- platform.Event{Kind: kind, Package: pkg, At: d.now()}:
	default:
	}
}

// SelfPackage implements platform.Platform.
func (d *Device) SelfPackage() string { return d.self }

// ActiveRoot implements platform.Platform.
func (d *Device) ActiveRoot(ctx context.Context) (platform.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rootErr != nil {
		return nil, d.rootErr
	}
	app, ok := d.apps[d.foreground]
	if !ok || app.Root == nil {
		return nil, platform.ErrNoActiveWindow
	}
	return d.acquireLocked(app.Root, app.Package), nil
}

// Windows implements platform.Platform.
func (d *Device) Windows(ctx context.Context) ([]platform.Window, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.windows != nil {
		return append([]platform.Window(nil), d.windows...), nil
	}
	app, ok := d.apps[d.foreground]
	if !ok {
		return nil, nil
	}
	return []platform.Window{{
		Type:    platform.WindowApplication,
		Active:  true,
		Package: app.Package,
		Bounds:  app.Bounds,
	}}, nil
}

// AppInfo implements platform.Platform.
func (d *Device) AppInfo(ctx context.Context, pkg string) (platform.AppInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	app, ok := d.apps[pkg]
	if !ok {
		return platform.AppInfo{}, fmt.Errorf("memtree: %s: %w", pkg, ErrUnknownApp)
	}
	return platform.AppInfo{
		Package:       app.Package,
		Label:         app.Label,
		System:        app.System,
		UpdatedSystem: app.UpdatedSystem,
	}, nil
}

func (d *Device) acquireLocked(n *Node, pkg string) *handle {
	d.live.Add(1)
	d.acquired.Add(1)
	return &handle{dev: d, node: n, pkg: pkg, snap: *n, children: len(n.Children)}
}

// handle is a borrowed reference. snap holds the properties as they were at
// acquisition time.
type handle struct {
	dev      *Device
	node     *Node
	pkg      string
	snap     Node
	children int
	released atomic.Bool
}

func (h *handle) Text() string               { return h.snap.Text }
func (h *handle) ContentDescription() string { return h.snap.Desc }
func (h *handle) ClassName() string          { return h.snap.Class }
func (h *handle) ViewID() string             { return h.snap.ViewID }
func (h *handle) PackageName() string        { return h.pkg }
func (h *handle) Bounds() platform.Rect      { return h.snap.Bounds }
func (h *handle) IsClickable() bool          { return h.snap.Clickable }
func (h *handle) IsEditable() bool           { return h.snap.Editable }
func (h *handle) IsFocusable() bool          { return h.snap.Focusable }
func (h *handle) IsCheckable() bool          { return h.snap.Checkable }
func (h *handle) ChildCount() int            { return h.children }

func (h *handle) Child(ctx context.Context, i int) (platform.Node, error) {
	if h.released.Load() {
		return nil, platform.ErrStaleNode
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.node.FailChildren {
		return nil, platform.ErrStaleNode
	}
	if i < 0 || i >= len(h.node.Children) {
		return nil, nil
	}
	return h.dev.acquireLocked(h.node.Children[i], h.pkg), nil
}

func (h *handle) Perform(ctx context.Context, action platform.Action, arg string) (bool, error) {
	if h.released.Load() {
		return false, platform.ErrStaleNode
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()

	var ok bool
	switch action {
	case platform.ActionClick:
		ok = h.node.Clickable
	case platform.ActionSetText:
		ok = h.node.Editable
		if ok {
			h.node.Text = arg
		}
	case platform.ActionScrollForward, platform.ActionScrollBackward:
		ok = h.node.Scrollable
	}
	h.dev.performed = append(h.dev.performed, Performed{Action: action, Text: h.snap.Text, Arg: arg, OK: ok})
	return ok, nil
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return errors.New("memtree: handle released twice")
	}
	h.dev.live.Add(-1)
	return nil
}
