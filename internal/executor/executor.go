package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/v0xg/voiceassist/internal/platform"
)

var (
	ErrNoActiveWindow  = errors.New("executor: no active window")
	ErrNotFound        = errors.New("executor: no matching element")
	ErrNotClickable    = errors.New("executor: element not clickable")
	ErrNoEditableField = errors.New("executor: no editable field")
	ErrActionFailed    = errors.New("executor: action failed")
	ErrEmptyQuery      = errors.New("executor: empty query")
)

// Options configures execution behavior
type Options struct {
	// Retries is how many times a stale or missing root is re-acquired
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DefaultOptions returns the stock retry policy
func DefaultOptions() Options {
	return Options{Retries: 1, RetryDelay: 300 * time.Millisecond}
}

// Executor performs actions on the live UI tree. Every call acquires its
// own root and releases every handle it borrowed before returning.
type Executor struct {
	p    platform.Platform
	opts Options
	log  *slog.Logger
}

// New creates an Executor
func New(p platform.Platform, opts Options, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{p: p, opts: opts, log: log}
}

// Execute dispatches a single action
func (x *Executor) Execute(ctx context.Context, action Action) (*Result, error) {
	var matched string
	var err error
	switch action.Type {
	case "click":
		matched, err = x.ClickByText(ctx, action.Target)
	case "type":
		err = x.TypeText(ctx, action.Text)
	case "scroll":
		err = x.Scroll(ctx, action.Direction)
	default:
		return nil, fmt.Errorf("unknown action type: %s", action.Type)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Action: action, Matched: matched}, nil
}

// ClickByText clicks the first node in pre-order whose text contains query,
// ignoring case. It returns the full text of the clicked node. A matching
// node that is not clickable fails without side effects.
func (x *Executor) ClickByText(ctx context.Context, query string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", ErrEmptyQuery
	}

	var matched string
	err := x.withRoot(ctx, func(root platform.Node) error {
		var found bool
		var actErr error
		err := platform.Walk(ctx, x.log, root, func(n platform.Node, _ int) error {
			if !strings.Contains(strings.ToLower(n.Text()), q) {
				return nil
			}
			found = true
			matched = n.Text()
			if !n.IsClickable() {
				actErr = fmt.Errorf("%w: %q", ErrNotClickable, matched)
				return platform.StopWalk
			}
			actErr = perform(ctx, n, platform.ActionClick, "")
			return platform.StopWalk
		})
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrNotFound, query)
		}
		return actErr
	})
	if err != nil {
		return "", err
	}
	x.log.Info("executor: clicked", "query", query, "matched", matched)
	return matched, nil
}

// TypeText sets the text of the first editable node.
func (x *Executor) TypeText(ctx context.Context, text string) error {
	err := x.withRoot(ctx, func(root platform.Node) error {
		var found bool
		var actErr error
		err := platform.Walk(ctx, x.log, root, func(n platform.Node, _ int) error {
			if !n.IsEditable() {
				return nil
			}
			found = true
			actErr = perform(ctx, n, platform.ActionSetText, text)
			return platform.StopWalk
		})
		if err != nil {
			return err
		}
		if !found {
			return ErrNoEditableField
		}
		return actErr
	})
	if err != nil {
		return err
	}
	x.log.Info("executor: typed", "chars", len(text))
	return nil
}

// Scroll scrolls the active window. Up scrolls backward, Down forward.
func (x *Executor) Scroll(ctx context.Context, dir Direction) error {
	var action platform.Action
	switch dir {
	case Up:
		action = platform.ActionScrollBackward
	case Down:
		action = platform.ActionScrollForward
	default:
		return fmt.Errorf("executor: unknown scroll direction %q", dir)
	}
	err := x.withRoot(ctx, func(root platform.Node) error {
		return perform(ctx, root, action, "")
	})
	if err != nil {
		return err
	}
	x.log.Info("executor: scrolled", "direction", dir)
	return nil
}

// perform runs action on n. The cause of a failure is kept as text only:
// the action may have landed, so a stale node here must not look retryable.
func perform(ctx context.Context, n platform.Node, action platform.Action, arg string) error {
	ok, err := n.Perform(ctx, action, arg)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrActionFailed, action, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionFailed, action)
	}
	return nil
}

// withRoot runs fn against a freshly acquired root. Stale handles met while
// acquiring or walking and a missing window are retried per Options;
// everything else, including a failed action, fails at once.
func (x *Executor) withRoot(ctx context.Context, fn func(root platform.Node) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = platform.WithActiveRoot(ctx, x.log, x.p, fn)
		if !transient(err) || attempt >= x.opts.Retries {
			break
		}
		x.log.Debug("executor: retrying", "attempt", attempt+1, "error", err)
		t := time.NewTimer(x.opts.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if errors.Is(err, platform.ErrNoActiveWindow) {
		return fmt.Errorf("%w: %w", ErrNoActiveWindow, err)
	}
	return err
}

func transient(err error) bool {
	return errors.Is(err, platform.ErrStaleNode) || errors.Is(err, platform.ErrNoActiveWindow)
}
