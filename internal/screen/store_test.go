package screen

import (
	"fmt"
	"sync"
	"testing"
)

func snap(pkg string) *Snapshot {
	return &Snapshot{Package: pkg, Elements: []Element{{Text: pkg}}}
}

func TestStore_CurrentOrEmpty(t *testing.T) {
	s := NewStore(0)
	if s.HasData() {
		t.Fatal("HasData on fresh store")
	}
	got := s.CurrentOrEmpty()
	if got.Package != "none" || got.Hierarchy != "No screen data available" || !got.Empty() {
		t.Errorf("placeholder: got %+v", got)
	}

	s.Update(snap("com.a"))
	cur, ok := s.Current()
	if !ok || cur.Package != "com.a" {
		t.Errorf("Current: got %v, %v", cur, ok)
	}
}

func TestStore_HistoryOnlyGrowsOnAppChange(t *testing.T) {
	s := NewStore(DefaultHistorySize)

	s.Update(snap("com.a"))
	s.Update(snap("com.a"))
	s.Update(snap("com.a"))
	if n := len(s.History()); n != 0 {
		t.Fatalf("History after same-app updates: got %d, want 0", n)
	}

	s.Update(snap("com.b"))
	h := s.History()
	if len(h) != 1 || h[0].Package != "com.a" {
		t.Fatalf("History: got %v", h)
	}
}

func TestStore_HistoryEvictsOldest(t *testing.T) {
	s := NewStore(DefaultHistorySize)
	for i := 0; i < 15; i++ {
		s.Update(snap(fmt.Sprintf("com.app%d", i)))
	}

	h := s.History()
	if len(h) != DefaultHistorySize {
		t.Fatalf("History length: got %d, want %d", len(h), DefaultHistorySize)
	}
	// app14 is current; app4..app13 are history.
	for i, e := range h {
		want := fmt.Sprintf("com.app%d", i+4)
		if e.Package != want {
			t.Errorf("History[%d]: got %q, want %q", i, e.Package, want)
		}
	}
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(2)
	s.Update(snap("com.a"))
	s.Update(snap("com.b"))
	s.Clear()

	if s.HasData() {
		t.Error("HasData after Clear")
	}
	if n := len(s.History()); n != 0 {
		t.Errorf("History after Clear: got %d", n)
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(DefaultHistorySize)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Update(snap(fmt.Sprintf("com.w%d.%d", i, j%3)))
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cur := s.CurrentOrEmpty()
				_ = cur.Package
				if len(s.History()) > DefaultHistorySize {
					t.Error("history over capacity")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestElement_Line(t *testing.T) {
	tests := []struct {
		name string
		e    Element
		want string
	}{
		{"full", Element{Text: "Login", ContentDescription: "Sign in", Clickable: true, Focusable: true, ClassName: "android.widget.Button"}, `Text:"Login" Desc:"Sign in" [Clickable][Focusable] (Button)`},
		{"editable", Element{Editable: true, ClassName: "android.widget.EditText"}, `[Editable] (EditText)`},
		{"no package", Element{Text: "x", ClassName: "View"}, `Text:"x" (View)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Line(); got != tt.want {
				t.Errorf("Line: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSnapshot_Summary(t *testing.T) {
	s := &Snapshot{Package: "com.a", Elements: []Element{
		{Text: "One", Clickable: true},
		{ContentDescription: "skipped"},
		{Text: "Two"},
		{Text: "Three"},
	}}
	want := "App: com.a\nElements on screen:\n- One [clickable]\n- Two\n"
	if got := s.Summary(2); got != want {
		t.Errorf("Summary:\ngot  %q\nwant %q", got, want)
	}
}
