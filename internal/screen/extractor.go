package screen

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/v0xg/voiceassist/internal/platform"
)

// Extractor converts live UI trees into snapshots.
type Extractor struct {
	log *slog.Logger
	now func() time.Time
}

// NewExtractor creates an Extractor.
func NewExtractor(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log, now: time.Now}
}

// Meaningful reports whether a node carries anything worth keeping: text, a
// description, or a way to interact with it. Layout-only containers fail.
func Meaningful(n platform.Node) bool {
	return n.Text() != "" ||
		n.ContentDescription() != "" ||
		n.IsClickable() ||
		n.IsEditable() ||
		n.IsCheckable()
}

// Extract walks the tree under root and returns the meaningful nodes in
// pre-order. A nil root yields an empty snapshot. If a child cannot be read
// mid-walk the borrowed handles are still released and the error returned;
// the partial snapshot must not be published.
func (x *Extractor) Extract(ctx context.Context, root platform.Node) (*Snapshot, error) {
	if root == nil {
		return x.newSnapshot("unknown", nil), nil
	}

	pkg := root.PackageName()
	if pkg == "" {
		pkg = "unknown"
	}

	var elements []Element
	err := platform.Walk(ctx, x.log, root, func(n platform.Node, _ int) error {
		if !Meaningful(n) {
			return nil
		}
		elements = append(elements, Element{
			Text:               n.Text(),
			ClassName:          n.ClassName(),
			Clickable:          n.IsClickable(),
			Editable:           n.IsEditable(),
			Focusable:          n.IsFocusable(),
			Bounds:             n.Bounds(),
			ViewID:             n.ViewID(),
			ContentDescription: n.ContentDescription(),
		})
		return nil
	})
	snap := x.newSnapshot(pkg, elements)
	if err != nil {
		return snap, fmt.Errorf("screen: extract %s: %w", pkg, err)
	}
	return snap, nil
}

// ExtractActive acquires the active root, extracts it and releases the root.
// When no root can be acquired no snapshot is returned, only the error.
func (x *Extractor) ExtractActive(ctx context.Context, p platform.Platform) (*Snapshot, error) {
	var snap *Snapshot
	err := platform.WithActiveRoot(ctx, x.log, p, func(root platform.Node) error {
		var err error
		snap, err = x.Extract(ctx, root)
		return err
	})
	if snap == nil {
		return nil, fmt.Errorf("screen: active root: %w", err)
	}
	return snap, err
}

func (x *Extractor) newSnapshot(pkg string, elements []Element) *Snapshot {
	at := x.now()
	return &Snapshot{
		ID:         ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		Package:    pkg,
		Elements:   elements,
		Hierarchy:  buildHierarchy(elements),
		CapturedAt: at,
	}
}
