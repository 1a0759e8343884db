package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/voiceassist/internal/platform"
)

// childrenJS selects the rendered children of this.
const childrenJS = `Array.from(this.children).filter(c =>
	!['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'META', 'LINK'].includes(c.tagName) &&
	(c.offsetParent !== null || getComputedStyle(c).position === 'fixed'))`

// propsJS captures everything a platform.Node exposes in one round trip.
const propsJS = `() => {
	const el = this;
	const tag = el.tagName.toLowerCase();
	const type = (el.type || '').toLowerCase();
	const buttonish = ['submit', 'button', 'reset'];
	const checkable = tag === 'input' && (type === 'checkbox' || type === 'radio');
	const editable = el.isContentEditable || tag === 'textarea' ||
		(tag === 'input' && !buttonish.includes(type) && !checkable && type !== 'hidden');
	const clickable = tag === 'button' || (tag === 'a' && el.hasAttribute('href')) ||
		el.getAttribute('role') === 'button' || typeof el.onclick === 'function' ||
		(tag === 'input' && buttonish.includes(type)) || tag === 'summary';
	let text = Array.from(el.childNodes).filter(n => n.nodeType === 3)
		.map(n => n.textContent.trim()).filter(Boolean).join(' ');
	if (tag === 'input' && buttonish.includes(type)) text = el.value || '';
	if (editable && 'value' in el) text = el.value || '';
	const r = el.getBoundingClientRect();
	return {
		text: text.slice(0, 200),
		desc: el.getAttribute('aria-label') || el.getAttribute('alt') ||
			el.getAttribute('title') || el.getAttribute('placeholder') || '',
		tag: tag,
		id: el.id || '',
		left: Math.round(r.left), top: Math.round(r.top),
		right: Math.round(r.right), bottom: Math.round(r.bottom),
		clickable: clickable,
		editable: editable,
		focusable: el.tabIndex >= 0,
		checkable: checkable,
		children: (` + childrenJS + `).length,
	};
}`

const childJS = `(i) => (` + childrenJS + `)[i] || null`

const scrollJS = `(dy) => {
	const s = document.scrollingElement || document.body;
	const before = s.scrollTop;
	s.scrollBy(0, dy);
	return s.scrollTop !== before;
}`

type nodeProps struct {
	Text      string `json:"text"`
	Desc      string `json:"desc"`
	Tag       string `json:"tag"`
	ID        string `json:"id"`
	Left      int    `json:"left"`
	Top       int    `json:"top"`
	Right     int    `json:"right"`
	Bottom    int    `json:"bottom"`
	Clickable bool   `json:"clickable"`
	Editable  bool   `json:"editable"`
	Focusable bool   `json:"focusable"`
	Checkable bool   `json:"checkable"`
	Children  int    `json:"children"`
}

func parseProps(raw string) (nodeProps, error) {
	var p nodeProps
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nodeProps{}, fmt.Errorf("browser: decode node: %w", err)
	}
	return p, nil
}

// node is a platform.Node over a rod element. Its remote object is freed on
// Release.
type node struct {
	el       *rod.Element
	pkg      string
	props    nodeProps
	released atomic.Bool
}

func acquire(ctx context.Context, el *rod.Element, pkg string) (*node, error) {
	res, err := el.Context(ctx).Eval(propsJS)
	if err != nil {
		_ = el.Release()
		return nil, staleErr(ctx, err)
	}
	p, err := parseProps(res.Value.JSON("", ""))
	if err != nil {
		_ = el.Release()
		return nil, err
	}
	return &node{el: el, pkg: pkg, props: p}, nil
}

// staleErr maps a CDP failure on a node to platform.ErrStaleNode unless the
// caller gave up.
func staleErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", platform.ErrStaleNode, err)
}

func (n *node) Text() string               { return n.props.Text }
func (n *node) ContentDescription() string { return n.props.Desc }
func (n *node) ClassName() string          { return "html." + n.props.Tag }
func (n *node) ViewID() string             { return n.props.ID }
func (n *node) PackageName() string        { return n.pkg }
func (n *node) IsClickable() bool          { return n.props.Clickable }
func (n *node) IsEditable() bool           { return n.props.Editable }
func (n *node) IsFocusable() bool          { return n.props.Focusable }
func (n *node) IsCheckable() bool          { return n.props.Checkable }
func (n *node) ChildCount() int            { return n.props.Children }

func (n *node) Bounds() platform.Rect {
	return platform.Rect{Left: n.props.Left, Top: n.props.Top, Right: n.props.Right, Bottom: n.props.Bottom}
}

func (n *node) Child(ctx context.Context, i int) (platform.Node, error) {
	if n.released.Load() {
		return nil, platform.ErrStaleNode
	}
	el, err := n.el.Context(ctx).Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(childJS, i))
	if err != nil {
		var nf *rod.ElementNotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, staleErr(ctx, err)
	}
	return acquire(ctx, el, n.pkg)
}

func (n *node) Perform(ctx context.Context, action platform.Action, arg string) (bool, error) {
	if n.released.Load() {
		return false, platform.ErrStaleNode
	}
	el := n.el.Context(ctx)

	switch action {
	case platform.ActionClick:
		if err := el.ScrollIntoView(); err != nil {
			return false, staleErr(ctx, err)
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false, staleErr(ctx, err)
		}
		return true, nil

	case platform.ActionSetText:
		if !n.props.Editable {
			return false, nil
		}
		if err := el.SelectAllText(); err != nil {
			return false, staleErr(ctx, err)
		}
		if err := el.Input(arg); err != nil {
			return false, staleErr(ctx, err)
		}
		return true, nil

	case platform.ActionScrollForward, platform.ActionScrollBackward:
		dy := n.props.Bottom - n.props.Top
		if dy <= 0 {
			dy = 600
		}
		dy = dy * 4 / 5
		if action == platform.ActionScrollBackward {
			dy = -dy
		}
		res, err := el.Eval(scrollJS, dy)
		if err != nil {
			return false, staleErr(ctx, err)
		}
		return res.Value.Bool(), nil
	}
	return false, fmt.Errorf("browser: unsupported action %s", action)
}

func (n *node) Release() error {
	if !n.released.CompareAndSwap(false, true) {
		return errors.New("browser: node released twice")
	}
	if err := n.el.Release(); err != nil && !strings.Contains(err.Error(), "Could not find object") {
		return fmt.Errorf("browser: release: %w", err)
	}
	return nil
}
