package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/v0xg/voiceassist/internal/ai"
	"github.com/v0xg/voiceassist/internal/executor"
	"github.com/v0xg/voiceassist/internal/platform"
	"github.com/v0xg/voiceassist/internal/platform/memtree"
	"github.com/v0xg/voiceassist/internal/prefs"
	"github.com/v0xg/voiceassist/internal/screen"
	"github.com/v0xg/voiceassist/internal/service"
	"github.com/v0xg/voiceassist/internal/speech"
)

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSpeaker) Speak(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return "id", nil
}

func (s *recordingSpeaker) Stop() {}

func (s *recordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// chanRecognizer hands out sessions fed by the test.
type chanRecognizer struct {
	sessions chan chan speech.Result
}

func newChanRecognizer() *chanRecognizer {
	return &chanRecognizer{sessions: make(chan chan speech.Result, 4)}
}

func (r *chanRecognizer) Listen(ctx context.Context) (<-chan speech.Result, error) {
	out := make(chan speech.Result, 4)
	select {
	case r.sessions <- out:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return out, nil
}

type fixture struct {
	dev     *memtree.Device
	handle  *service.Handle
	speaker *recordingSpeaker
	rec     *chanRecognizer
	a       *Assistant
}

func newFixture(t *testing.T, interp ai.Interpreter) *fixture {
	t.Helper()
	dev := memtree.NewDevice("com.voiceassist")
	dev.Install(memtree.App{Package: "com.example.login", Root: &memtree.Node{
		Class:      "android.widget.LinearLayout",
		Scrollable: true,
		Children: []*memtree.Node{
			{Text: "Welcome"},
			{Editable: true, Desc: "Email", Class: "android.widget.EditText"},
			{Text: "Login", Clickable: true, Class: "android.widget.Button"},
		},
	}})

	f := &fixture{dev: dev, handle: &service.Handle{}, speaker: &recordingSpeaker{}, rec: newChanRecognizer()}
	svc := service.New(service.DefaultConfig(), service.Deps{
		Platform: dev,
		Prefs:    prefs.NewMemory(),
		Speaker:  f.speaker,
		Executor: executor.Options{},
	}, nil)
	if err := f.handle.Start(context.Background(), svc); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.handle.Stop)

	cfg := DefaultConfig()
	cfg.RecognizerRetryDelay = 5 * time.Millisecond
	f.a = New(cfg, f.handle, interp, f.speaker, f.rec, nil)
	return f
}

func (f *fixture) show(t *testing.T, pkg string) {
	t.Helper()
	if err := f.dev.Launch(pkg); err != nil {
		t.Fatal(err)
	}
	svc, _ := f.handle.Get()
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestHandleCommand_Click(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	f.show(t, "com.example.login")

	got, err := f.a.HandleCommand(context.Background(), "click login")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Clicked Login" {
		t.Errorf("response: got %q", got)
	}
	if sp := f.speaker.Spoken(); len(sp) != 1 || sp[0] != got {
		t.Errorf("spoken: %v", sp)
	}
	perf := f.dev.Performed()
	if len(perf) != 1 || perf[0].Action != platform.ActionClick || perf[0].Text != "Login" {
		t.Errorf("performed: %+v", perf)
	}
	st := f.a.Status()
	if st.State != Idle || st.LastCommand != "click login" || st.LastResponse != got || st.IsError {
		t.Errorf("status: %+v", st)
	}
	if n := f.dev.Outstanding(); n != 0 {
		t.Errorf("Outstanding handles: %d", n)
	}
}

func TestHandleCommand_Responses(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"click register", "Couldn't find register on screen"},
		{"type ada@example.com", "Typed: ada@example.com"},
		{"scroll down", "Scrolled down"},
		{"what's on screen", "You're in com.example.login. I can see: Welcome, Login"},
		{"sing a song", ai.HelpText},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			f := newFixture(t, ai.RuleInterpreter{})
			f.show(t, "com.example.login")
			got, err := f.a.HandleCommand(context.Background(), tt.command)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleCommand_ActionsWithoutDetail(t *testing.T) {
	tests := []struct {
		resp ai.CommandResponse
		want string
	}{
		{ai.CommandResponse{Action: ai.ActionClick}, MsgNoClickTarget},
		{ai.CommandResponse{Action: ai.ActionScroll}, MsgNoScrollDir},
		{ai.CommandResponse{Action: ai.ActionType}, MsgNoTypeText},
		{ai.CommandResponse{Action: ai.ActionUnknown}, MsgNotUnderstood},
		{ai.CommandResponse{Action: ai.ActionRead, TextToSpeak: "Welcome"}, "Welcome"},
	}
	for _, tt := range tests {
		t.Run(string(tt.resp.Action), func(t *testing.T) {
			interp := ai.InterpreterFunc(func(context.Context, string, *screen.Snapshot) ai.CommandResponse { return tt.resp })
			f := newFixture(t, interp)
			f.show(t, "com.example.login")
			got, _ := f.a.HandleCommand(context.Background(), "anything")
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandleCommand_NoTextField(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	f.dev.Install(memtree.App{Package: "com.example.feed", Root: &memtree.Node{Text: "Top stories"}})
	f.show(t, "com.example.feed")

	got, _ := f.a.HandleCommand(context.Background(), "type hello")
	if got != MsgNoTextField {
		t.Errorf("got %q", got)
	}
}

func TestHandleCommand_NoScreenData(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	got, err := f.a.HandleCommand(context.Background(), "click login")
	if err != nil {
		t.Fatal(err)
	}
	if got != MsgNoScreenData {
		t.Errorf("got %q", got)
	}
	if len(f.dev.Performed()) != 0 {
		t.Error("action performed without screen data")
	}
}

func TestHandleCommand_ServiceStopped(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	f.handle.Stop()
	got, _ := f.a.HandleCommand(context.Background(), "click login")
	if got != MsgEnableService {
		t.Errorf("got %q", got)
	}
	if err := f.a.StartListening(context.Background()); !errors.Is(err, ErrServiceNotRunning) {
		t.Errorf("StartListening: got %v", err)
	}
	if st := f.a.Status(); st.Message != MsgEnableService || !st.IsError || st.State != Idle {
		t.Errorf("status: %+v", st)
	}
}

func TestHandleCommand_InterpreterPanic(t *testing.T) {
	interp := ai.InterpreterFunc(func(context.Context, string, *screen.Snapshot) ai.CommandResponse { panic("boom") })
	f := newFixture(t, interp)
	f.show(t, "com.example.login")

	got, err := f.a.HandleCommand(context.Background(), "click login")
	if err != nil || got != MsgInternalError {
		t.Errorf("got %q, %v", got, err)
	}
	if st := f.a.Status().State; st != Idle {
		t.Errorf("state after panic: %v", st)
	}
}

func TestHandleCommand_BusyRejectsSecond(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	interp := ai.InterpreterFunc(func(context.Context, string, *screen.Snapshot) ai.CommandResponse {
		close(entered)
		<-release
		return ai.CommandResponse{Action: ai.ActionRead, TextToSpeak: "done"}
	})
	f := newFixture(t, interp)
	f.show(t, "com.example.login")

	done := make(chan string, 1)
	go func() {
		got, _ := f.a.HandleCommand(context.Background(), "read")
		done <- got
	}()
	<-entered

	if _, err := f.a.HandleCommand(context.Background(), "scroll down"); !errors.Is(err, ErrBusy) {
		t.Errorf("second command: got %v", err)
	}
	if err := f.a.StartListening(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("listen while busy: got %v", err)
	}
	close(release)
	if got := <-done; got != "done" {
		t.Errorf("first command: got %q", got)
	}
	if sp := f.speaker.Spoken(); len(sp) != 1 {
		t.Errorf("spoken: %v", sp)
	}
}

func TestListenOnce(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	f.show(t, "com.example.login")

	go func() {
		s := <-f.rec.sessions
		s <- speech.Result{Text: "click"}
		s <- speech.Result{Text: "click login", Final: true}
		close(s)
	}()
	got, err := f.a.ListenOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "Clicked Login" {
		t.Errorf("got %q", got)
	}
}

func TestListenOnce_RetriesTransient(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	f.show(t, "com.example.login")

	go func() {
		s := <-f.rec.sessions
		s <- speech.Result{Err: errors.New("network"), Transient: true}
		close(s)
		s = <-f.rec.sessions
		s <- speech.Result{Text: "scroll up", Final: true}
		close(s)
	}()
	got, err := f.a.ListenOnce(context.Background())
	if err != nil || got != "Scrolled up" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestListenOnce_FatalError(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	f.show(t, "com.example.login")

	fatal := errors.New("no microphone")
	go func() {
		s := <-f.rec.sessions
		s <- speech.Result{Err: fatal}
		close(s)
	}()
	if _, err := f.a.ListenOnce(context.Background()); !errors.Is(err, fatal) {
		t.Errorf("got %v", err)
	}
	st := f.a.Status()
	if st.State != Error || !st.IsError {
		t.Errorf("status: %+v", st)
	}
	// Error is not terminal.
	if _, err := f.a.HandleCommand(context.Background(), "scroll down"); err != nil {
		t.Errorf("command after error: %v", err)
	}
}

func TestStopListening(t *testing.T) {
	f := newFixture(t, ai.RuleInterpreter{})
	f.show(t, "com.example.login")

	// Not listening: nothing happens.
	f.a.StopListening()
	if st := f.a.Status(); st.State != Idle || st.Message == "Stopped listening" {
		t.Errorf("status after idle stop: %+v", st)
	}

	if err := f.a.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := <-f.rec.sessions
	f.a.StopListening()
	f.a.StopListening()
	if st := f.a.Status(); st.State != Idle || st.Message != "Stopped listening" {
		t.Errorf("status after stop: %+v", st)
	}

	// A transcript arriving after the stop is dropped.
	s <- speech.Result{Text: "click login", Final: true}
	close(s)
	time.Sleep(50 * time.Millisecond)
	if len(f.dev.Performed()) != 0 || len(f.speaker.Spoken()) != 0 {
		t.Error("late transcript was processed")
	}
}

func TestDescribe(t *testing.T) {
	snap := &screen.Snapshot{Package: "com.example"}
	if got := Describe(snap, 10); got != MsgEmptyScreen {
		t.Errorf("empty: got %q", got)
	}
	for _, s := range []string{"a", "", "b", "c"} {
		snap.Elements = append(snap.Elements, screen.Element{Text: s})
	}
	if got, want := Describe(snap, 2), "You're in com.example. I can see: a, b"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMachine(t *testing.T) {
	var seen []string
	m := NewMachine(func(from, to State, ev Event) {
		seen = append(seen, from.String()+">"+to.String())
	})

	steps := []struct {
		ev      Event
		want    State
		invalid bool
	}{
		{ev: EvTranscript, want: Idle, invalid: true},
		{ev: EvListen, want: Listening},
		{ev: EvListen, want: Listening, invalid: true},
		{ev: EvTranscript, want: Processing},
		{ev: EvCommand, want: Processing, invalid: true},
		{ev: EvRespond, want: Speaking},
		{ev: EvDone, want: Idle},
		{ev: EvCommand, want: Processing},
		{ev: EvFail, want: Error},
		{ev: EvListen, want: Listening},
		{ev: EvStop, want: Idle},
	}
	for i, st := range steps {
		got, err := m.Fire(st.ev)
		if st.invalid != errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("step %d (%s): err = %v", i, st.ev, err)
		}
		if got != st.want || m.State() != st.want {
			t.Fatalf("step %d (%s): got %s, want %s", i, st.ev, got, st.want)
		}
	}
	if got := strings.Join(seen, " "); !strings.HasPrefix(got, "idle>listening listening>processing") {
		t.Errorf("onChange: %s", got)
	}

	if m.FireIf(Listening, EvStop) {
		t.Error("FireIf applied in the wrong state")
	}
	if !m.FireIf(Idle, EvListen) || m.State() != Listening {
		t.Error("FireIf did not apply")
	}
}
