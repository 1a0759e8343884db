package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/v0xg/voiceassist/internal/platform"
	"github.com/v0xg/voiceassist/internal/platform/memtree"
)

func formTree() *memtree.Node {
	return &memtree.Node{
		Class:      "android.widget.ScrollView",
		Scrollable: true,
		Children: []*memtree.Node{
			{Text: "Submit your details below", Class: "android.widget.TextView"},
			{Class: "android.widget.LinearLayout", Children: []*memtree.Node{
				{Class: "android.widget.EditText", Editable: true, ViewID: "name"},
				{Class: "android.widget.EditText", Editable: true, ViewID: "email"},
			}},
			{Text: "Submit Now", Class: "android.widget.Button", Clickable: true},
			{Text: "Submit later", Class: "android.widget.Button", Clickable: true},
		},
	}
}

func setup(t *testing.T, root *memtree.Node) (*Executor, *memtree.Device) {
	t.Helper()
	dev := memtree.NewDevice("self")
	dev.Install(memtree.App{Package: "com.example", Root: root})
	if err := dev.Launch("com.example"); err != nil {
		t.Fatal(err)
	}
	return New(dev, Options{Retries: 1, RetryDelay: time.Millisecond}, nil), dev
}

func assertReleased(t *testing.T, dev *memtree.Device) {
	t.Helper()
	if n := dev.Outstanding(); n != 0 {
		t.Errorf("Outstanding handles: got %d, want 0", n)
	}
}

func TestClickByText_SubstringIgnoringCase(t *testing.T) {
	root := &memtree.Node{Children: []*memtree.Node{
		{Text: "Cancel", Clickable: true},
		{Text: "Submit Now", Clickable: true},
	}}
	x, dev := setup(t, root)

	matched, err := x.ClickByText(context.Background(), "submit")
	if err != nil {
		t.Fatalf("ClickByText: %v", err)
	}
	if matched != "Submit Now" {
		t.Errorf("matched: got %q", matched)
	}
	got := dev.Performed()
	if len(got) != 1 || got[0].Action != platform.ActionClick || got[0].Text != "Submit Now" || !got[0].OK {
		t.Errorf("performed: %+v", got)
	}
	assertReleased(t, dev)
}

func TestClickByText_FirstMatchMustBeClickable(t *testing.T) {
	x, dev := setup(t, formTree())

	// "Submit your details below" comes first in pre-order and is plain text.
	_, err := x.ClickByText(context.Background(), "Submit")
	if !errors.Is(err, ErrNotClickable) {
		t.Fatalf("err: got %v, want ErrNotClickable", err)
	}
	if got := dev.Performed(); len(got) != 0 {
		t.Errorf("performed: %+v, want nothing", got)
	}
	assertReleased(t, dev)

	matched, err := x.ClickByText(context.Background(), "submit now")
	if err != nil || matched != "Submit Now" {
		t.Errorf("ClickByText(submit now): %q, %v", matched, err)
	}
	assertReleased(t, dev)
}

func TestClickByText_NoMatchLeavesTreeAlone(t *testing.T) {
	x, dev := setup(t, formTree())

	_, err := x.ClickByText(context.Background(), "Checkout")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err: got %v, want ErrNotFound", err)
	}
	if got := dev.Performed(); len(got) != 0 {
		t.Errorf("performed: %+v, want nothing", got)
	}
	if n := dev.Acquired(); n != 7 {
		t.Errorf("Acquired: got %d, want every node visited once (7)", n)
	}
	assertReleased(t, dev)

	if _, err := x.ClickByText(context.Background(), "  "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query: got %v", err)
	}
}

func TestTypeText(t *testing.T) {
	root := formTree()
	x, dev := setup(t, root)

	if err := x.TypeText(context.Background(), "Ada"); err != nil {
		t.Fatalf("TypeText: %v", err)
	}
	name := root.Children[1].Children[0]
	email := root.Children[1].Children[1]
	if name.Text != "Ada" || email.Text != "" {
		t.Errorf("fields: name=%q email=%q", name.Text, email.Text)
	}
	assertReleased(t, dev)
}

func TestTypeText_NoField(t *testing.T) {
	x, dev := setup(t, &memtree.Node{Children: []*memtree.Node{{Text: "Read only"}}})
	if err := x.TypeText(context.Background(), "x"); !errors.Is(err, ErrNoEditableField) {
		t.Errorf("err: got %v, want ErrNoEditableField", err)
	}
	assertReleased(t, dev)
}

func TestScroll(t *testing.T) {
	x, dev := setup(t, formTree())
	ctx := context.Background()

	if err := x.Scroll(ctx, Up); err != nil {
		t.Fatalf("Scroll(up): %v", err)
	}
	if err := x.Scroll(ctx, Down); err != nil {
		t.Fatalf("Scroll(down): %v", err)
	}
	got := dev.Performed()
	if len(got) != 2 || got[0].Action != platform.ActionScrollBackward || got[1].Action != platform.ActionScrollForward {
		t.Errorf("performed: %+v", got)
	}
	assertReleased(t, dev)

	x2, _ := setup(t, &memtree.Node{})
	if err := x2.Scroll(ctx, Down); !errors.Is(err, ErrActionFailed) {
		t.Errorf("unscrollable root: got %v, want ErrActionFailed", err)
	}
	if err := x.Scroll(ctx, "sideways"); err == nil {
		t.Error("bad direction: got nil")
	}
}

func TestExecutor_NoActiveWindow(t *testing.T) {
	dev := memtree.NewDevice("self")
	x := New(dev, Options{Retries: 2, RetryDelay: time.Millisecond}, nil)

	_, err := x.ClickByText(context.Background(), "ok")
	if !errors.Is(err, ErrNoActiveWindow) {
		t.Errorf("err: got %v, want ErrNoActiveWindow", err)
	}
}

// flakyPlatform fails ActiveRoot with a stale handle a fixed number of times.
type flakyPlatform struct {
	*memtree.Device
	failures int
}

func (p *flakyPlatform) ActiveRoot(ctx context.Context) (platform.Node, error) {
	if p.failures > 0 {
		p.failures--
		return nil, platform.ErrStaleNode
	}
	return p.Device.ActiveRoot(ctx)
}

func TestExecutor_RetriesStaleRoot(t *testing.T) {
	_, dev := setup(t, formTree())
	p := &flakyPlatform{Device: dev, failures: 1}
	x := New(p, Options{Retries: 1, RetryDelay: time.Millisecond}, nil)

	if _, err := x.ClickByText(context.Background(), "Submit later"); err != nil {
		t.Fatalf("ClickByText after one stale root: %v", err)
	}

	p.failures = 2
	if _, err := x.ClickByText(context.Background(), "Submit later"); !errors.Is(err, platform.ErrStaleNode) {
		t.Errorf("err after exhausting retries: got %v, want ErrStaleNode", err)
	}
	assertReleased(t, dev)
}

// landedThenStale performs every action on the device and then reports the
// node stale, as a browser page does when a click navigates away.
type landedThenStale struct {
	*memtree.Device
}

func (p landedThenStale) ActiveRoot(ctx context.Context) (platform.Node, error) {
	root, err := p.Device.ActiveRoot(ctx)
	if err != nil {
		return nil, err
	}
	return staleAfterPerform{root}, nil
}

type staleAfterPerform struct {
	platform.Node
}

func (n staleAfterPerform) Child(ctx context.Context, i int) (platform.Node, error) {
	c, err := n.Node.Child(ctx, i)
	if err != nil || c == nil {
		return c, err
	}
	return staleAfterPerform{c}, nil
}

func (n staleAfterPerform) Perform(ctx context.Context, action platform.Action, arg string) (bool, error) {
	_, _ = n.Node.Perform(ctx, action, arg)
	return false, platform.ErrStaleNode
}

func TestExecutor_FailedActionNotRepeated(t *testing.T) {
	_, dev := setup(t, formTree())
	x := New(landedThenStale{dev}, Options{Retries: 2, RetryDelay: time.Millisecond}, nil)
	ctx := context.Background()

	_, err := x.ClickByText(ctx, "Submit later")
	if !errors.Is(err, ErrActionFailed) || errors.Is(err, platform.ErrStaleNode) {
		t.Errorf("click: got %v, want ErrActionFailed only", err)
	}
	if err := x.TypeText(ctx, "ada"); !errors.Is(err, ErrActionFailed) {
		t.Errorf("type: got %v, want ErrActionFailed", err)
	}
	if got := dev.Performed(); len(got) != 2 {
		t.Errorf("performed: got %+v, want one click and one set_text", got)
	}
	assertReleased(t, dev)
}

func TestExecute_Dispatch(t *testing.T) {
	x, dev := setup(t, formTree())
	ctx := context.Background()

	actions := []Action{
		{Type: "click", Target: "later"},
		{Type: "type", Text: "hi"},
		{Type: "scroll", Direction: Down},
	}
	for _, a := range actions {
		if _, err := x.Execute(ctx, a); err != nil {
			t.Errorf("Execute(%+v): %v", a, err)
		}
	}
	if _, err := x.Execute(ctx, Action{Type: "hover"}); err == nil {
		t.Error("unknown action: got nil")
	}
	if n := len(dev.Performed()); n != 3 {
		t.Errorf("performed: got %d, want 3", n)
	}
	assertReleased(t, dev)
}
