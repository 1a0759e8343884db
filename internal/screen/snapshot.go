// Package screen turns live UI trees into immutable snapshots and keeps the
// latest one as shared state for announcements and voice commands.
package screen

import (
	"strings"
	"time"

	"github.com/v0xg/voiceassist/internal/platform"
)

// Element is one interactive or informative node extracted from a UI tree.
type Element struct {
	Text               string        `json:"text,omitempty"`
	ClassName          string        `json:"className,omitempty"`
	Clickable          bool          `json:"clickable,omitempty"`
	Editable           bool          `json:"editable,omitempty"`
	Focusable          bool          `json:"focusable,omitempty"`
	Bounds             platform.Rect `json:"bounds"`
	ViewID             string        `json:"viewId,omitempty"`
	ContentDescription string        `json:"contentDescription,omitempty"`
}

// ShortClassName is the class name after its last dot.
func (e Element) ShortClassName() string {
	if i := strings.LastIndexByte(e.ClassName, '.'); i >= 0 {
		return e.ClassName[i+1:]
	}
	return e.ClassName
}

// Line renders the element the way it appears in Snapshot.Hierarchy:
//
//	Text:"Login" Desc:"Sign in" [Clickable][Focusable] (Button)
func (e Element) Line() string {
	var parts []string
	if e.Text != "" {
		parts = append(parts, `Text:"`+e.Text+`"`)
	}
	if e.ContentDescription != "" {
		parts = append(parts, `Desc:"`+e.ContentDescription+`"`)
	}
	var flags string
	if e.Clickable {
		flags += "[Clickable]"
	}
	if e.Editable {
		flags += "[Editable]"
	}
	if e.Focusable {
		flags += "[Focusable]"
	}
	if flags != "" {
		parts = append(parts, flags)
	}
	parts = append(parts, "("+e.ShortClassName()+")")
	return strings.Join(parts, " ")
}

// Snapshot is one point-in-time capture of the foreground app. Snapshots are
// shared between goroutines and must not be modified after construction.
type Snapshot struct {
	ID         string    `json:"id"`
	Package    string    `json:"package"`
	Elements   []Element `json:"elements"`
	Hierarchy  string    `json:"-"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Empty reports whether the snapshot has no elements.
func (s *Snapshot) Empty() bool { return s == nil || len(s.Elements) == 0 }

// FindByText returns the elements whose text or description contains query,
// ignoring case.
func (s *Snapshot) FindByText(query string) []Element {
	q := strings.ToLower(query)
	var out []Element
	for _, e := range s.Elements {
		if strings.Contains(strings.ToLower(e.Text), q) ||
			strings.Contains(strings.ToLower(e.ContentDescription), q) {
			out = append(out, e)
		}
	}
	return out
}

// Clickable returns the clickable elements.
func (s *Snapshot) Clickable() []Element {
	var out []Element
	for _, e := range s.Elements {
		if e.Clickable {
			out = append(out, e)
		}
	}
	return out
}

// Editable returns the text fields.
func (s *Snapshot) Editable() []Element {
	var out []Element
	for _, e := range s.Elements {
		if e.Editable {
			out = append(out, e)
		}
	}
	return out
}

// Summary lists up to limit elements with text, one per line, prefixed with
// the app package.
func (s *Snapshot) Summary(limit int) string {
	var b strings.Builder
	b.WriteString("App: " + s.Package + "\n")
	b.WriteString("Elements on screen:\n")
	n := 0
	for _, e := range s.Elements {
		if n >= limit {
			break
		}
		if e.Text == "" {
			continue
		}
		n++
		b.WriteString("- " + e.Text)
		if e.Clickable {
			b.WriteString(" [clickable]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildHierarchy(elements []Element) string {
	lines := make([]string, len(elements))
	for i, e := range elements {
		lines[i] = e.Line()
	}
	return strings.Join(lines, "\n")
}
