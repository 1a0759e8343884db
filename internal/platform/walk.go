package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// StopWalk may be returned by a VisitFunc to end a walk early. Walk itself
// then returns nil.
var StopWalk = errors.New("platform: stop walk")

// VisitFunc is called for every node in pre-order. The node is only valid
// for the duration of the call.
type VisitFunc func(n Node, depth int) error

// Walk visits root and all of its descendants depth-first, pre-order. Each
// child handle is released as soon as its subtree has been visited, on every
// exit path including errors and panics. root itself stays owned by the
// caller.
func Walk(ctx context.Context, log *slog.Logger, root Node, visit VisitFunc) error {
	if root == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	err := walk(ctx, log, root, 0, visit)
	if errors.Is(err, StopWalk) {
		return nil
	}
	return err
}

func walk(ctx context.Context, log *slog.Logger, n Node, depth int, visit VisitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := visit(n, depth); err != nil {
		return err
	}
	for i := 0; i < n.ChildCount(); i++ {
		child, err := n.Child(ctx, i)
		if err != nil {
			return fmt.Errorf("platform: child %d at depth %d: %w", i, depth+1, err)
		}
		if child == nil {
			continue
		}
		if err := walkChild(ctx, log, child, depth+1, visit); err != nil {
			return err
		}
	}
	return nil
}

func walkChild(ctx context.Context, log *slog.Logger, child Node, depth int, visit VisitFunc) error {
	defer Release(log, child)
	return walk(ctx, log, child, depth, visit)
}

// WithActiveRoot acquires the active root, runs fn, and releases the root
// whatever fn does.
func WithActiveRoot(ctx context.Context, log *slog.Logger, p Platform, fn func(root Node) error) error {
	root, err := p.ActiveRoot(ctx)
	if err != nil {
		return err
	}
	if root == nil {
		return ErrNoActiveWindow
	}
	defer Release(log, root)
	return fn(root)
}

// Release releases n and logs a failure. Release errors are never fatal.
func Release(log *slog.Logger, n Node) {
	if n == nil {
		return
	}
	if err := n.Release(); err != nil {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("platform: release node failed", "class", n.ClassName(), "error", err)
	}
}
