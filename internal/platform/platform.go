// Package platform defines the accessibility surface the assistant runs on:
// UI tree nodes that must be released after use, the window list, app
// metadata, and the UI-change notifications the platform delivers.
//
// Concrete platforms live in sub-packages (browser, memtree).
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrStaleNode is returned when a node handle no longer refers to a live
// element (recycled, detached, or its window went away).
var ErrStaleNode = errors.New("platform: stale node")

// ErrNoActiveWindow is returned by ActiveRoot when no window has focus.
var ErrNoActiveWindow = errors.New("platform: no active window")

// Rect is a rectangle in screen coordinates.
type Rect struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Action is a node-level operation.
type Action int

const (
	ActionClick Action = iota
	ActionSetText
	ActionScrollForward
	ActionScrollBackward
)

func (a Action) String() string {
	switch a {
	case ActionClick:
		return "click"
	case ActionSetText:
		return "set_text"
	case ActionScrollForward:
		return "scroll_forward"
	case ActionScrollBackward:
		return "scroll_backward"
	default:
		return "unknown"
	}
}

// Node is a borrowed handle on one element of a live UI tree. Property
// accessors return values captured when the handle was acquired. Every
// handle obtained from ActiveRoot or Child must be released exactly once.
type Node interface {
	Text() string
	ContentDescription() string
	ClassName() string
	ViewID() string
	PackageName() string
	Bounds() Rect

	IsClickable() bool
	IsEditable() bool
	IsFocusable() bool
	IsCheckable() bool

	ChildCount() int
	// Child acquires the i-th child. A nil node with a nil error means the
	// child disappeared between ChildCount and Child.
	Child(ctx context.Context, i int) (Node, error)

	// Perform runs an action on the node. arg carries the text for
	// ActionSetText and is ignored otherwise.
	Perform(ctx context.Context, action Action, arg string) (bool, error)

	Release() error
}

// WindowType classifies top-level windows.
type WindowType int

const (
	WindowApplication WindowType = iota + 1
	WindowInputMethod
	WindowSystem
	WindowOverlay
)

// Window describes one top-level window.
type Window struct {
	Type    WindowType
	Active  bool
	Package string
	Bounds  Rect
}

// AppInfo is package metadata.
type AppInfo struct {
	Package string
	Label   string
	// System is set for apps shipped with the system image.
	System bool
	// UpdatedSystem is set for system apps the user has updated.
	UpdatedSystem bool
}

// Platform is the accessibility capability.
type Platform interface {
	// ActiveRoot acquires the root of the active window's UI tree.
	ActiveRoot(ctx context.Context) (Node, error)
	Windows(ctx context.Context) ([]Window, error)
	AppInfo(ctx context.Context, pkg string) (AppInfo, error)
	// SelfPackage is the package of the assistant itself; its events are
	// never processed.
	SelfPackage() string
}

// EventKind is the type of a UI-change notification.
type EventKind int

const (
	WindowStateChanged EventKind = iota + 1
	WindowContentChanged
	ViewFocused
	ViewClicked
)

func (k EventKind) String() string {
	switch k {
	case WindowStateChanged:
		return "window_state_changed"
	case WindowContentChanged:
		return "window_content_changed"
	case ViewFocused:
		return "view_focused"
	case ViewClicked:
		return "view_clicked"
	default:
		return "unknown"
	}
}

// Event is one UI-change notification.
type Event struct {
	Kind    EventKind
	Package string
	At      time.Time
}

// EventSource is implemented by platforms that push notifications.
type EventSource interface {
	Events() <-chan Event
}
