// Package assistant runs voice commands: listen, interpret against the
// latest screen, act on the live tree and speak the outcome.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/v0xg/voiceassist/internal/ai"
	"github.com/v0xg/voiceassist/internal/executor"
	"github.com/v0xg/voiceassist/internal/screen"
	"github.com/v0xg/voiceassist/internal/service"
	"github.com/v0xg/voiceassist/internal/speech"
)

var (
	// ErrServiceNotRunning rejects commands while the accessibility service
	// is down.
	ErrServiceNotRunning = errors.New("assistant: accessibility service not running")
	// ErrBusy rejects a command while another one is in flight.
	ErrBusy = errors.New("assistant: busy")
	// ErrStopped is returned when listening was stopped before a command
	// arrived.
	ErrStopped = errors.New("assistant: listening stopped")
)

// User-facing messages.
const (
	MsgEnableService = "Please enable Accessibility Service first"
	MsgNoScreenData  = "No screen data available. Make sure the accessibility service is running."
	MsgNoClickTarget = "I don't know what to click"
	MsgNoScrollDir   = "I don't know which way to scroll"
	MsgNoTypeText    = "I don't know what to type"
	MsgScrollFailed  = "Couldn't scroll"
	MsgNoTextField   = "Couldn't find text field"
	MsgNotUnderstood = "I didn't understand that command"
	MsgInternalError = "Sorry, I encountered an error"
	MsgEmptyScreen   = "The screen appears to be empty"
)

// Config tunes the assistant.
type Config struct {
	// RecognizerRetryDelay is the wait before reopening a recognition
	// session after a transient error.
	RecognizerRetryDelay time.Duration `yaml:"recognizer_retry_delay"`
	// RecognizerRetries bounds consecutive transient failures.
	RecognizerRetries int `yaml:"recognizer_retries"`
	// DescribeLimit caps the elements named when describing the screen.
	DescribeLimit int `yaml:"describe_limit"`
}

// DefaultConfig returns the stock parameters.
func DefaultConfig() Config {
	return Config{RecognizerRetryDelay: time.Second, RecognizerRetries: 3, DescribeLimit: 10}
}

// Status is what a UI would show.
type Status struct {
	State        State
	Message      string
	LastCommand  string
	LastResponse string
	IsError      bool
}

// Assistant is the voice command pipeline. All state changes go through its
// Machine; one command is processed at a time.
type Assistant struct {
	cfg     Config
	h       *service.Handle
	interp  ai.Interpreter
	speaker speech.Speaker
	rec     speech.Recognizer
	log     *slog.Logger
	m       *Machine

	mu           sync.Mutex
	status       Status
	cancelListen context.CancelFunc
}

// New creates an Assistant. rec may be nil when commands only arrive
// through HandleCommand.
func New(cfg Config, h *service.Handle, interp ai.Interpreter, speaker speech.Speaker, rec speech.Recognizer, log *slog.Logger) *Assistant {
	if log == nil {
		log = slog.Default()
	}
	a := &Assistant{
		cfg:     cfg,
		h:       h,
		interp:  interp,
		speaker: speaker,
		rec:     rec,
		log:     log,
		status:  Status{Message: "Voice assistant ready"},
	}
	a.m = NewMachine(func(from, to State, ev Event) {
		log.Debug("assistant: transition", "from", from, "to", to, "event", ev)
	})
	return a
}

// Status returns the current status.
func (a *Assistant) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status
	st.State = a.m.State()
	return st
}

func (a *Assistant) setStatus(fn func(*Status)) {
	a.mu.Lock()
	fn(&a.status)
	a.mu.Unlock()
}

// StartListening opens a recognition session and returns at once. The
// final transcript is processed as a command in the background.
func (a *Assistant) StartListening(ctx context.Context) error {
	lctx, err := a.beginListening(ctx)
	if err != nil {
		return err
	}
	go func() {
		text, err := a.awaitTranscript(lctx)
		if _, err := a.finishListening(context.WithoutCancel(ctx), text, err); err != nil {
			a.log.Debug("assistant: listening ended", "error", err)
		}
	}()
	return nil
}

// ListenOnce listens for one command, processes it and returns the spoken
// response.
func (a *Assistant) ListenOnce(ctx context.Context) (string, error) {
	lctx, err := a.beginListening(ctx)
	if err != nil {
		return "", err
	}
	text, err := a.awaitTranscript(lctx)
	return a.finishListening(ctx, text, err)
}

// StopListening ends the current recognition session. When not listening
// it does nothing.
func (a *Assistant) StopListening() {
	a.mu.Lock()
	cancel := a.cancelListen
	a.mu.Unlock()

	if !a.m.FireIf(Listening, EvStop) {
		return
	}
	if cancel != nil {
		cancel()
	}
	a.setStatus(func(s *Status) { s.Message = "Stopped listening"; s.IsError = false })
}

func (a *Assistant) beginListening(ctx context.Context) (context.Context, error) {
	if _, ok := a.h.Get(); !ok {
		a.setStatus(func(s *Status) { s.Message = MsgEnableService; s.IsError = true })
		return nil, ErrServiceNotRunning
	}
	if a.rec == nil {
		return nil, errors.New("assistant: no recognizer")
	}
	if _, err := a.m.Fire(EvListen); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBusy, err)
	}

	lctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	if a.cancelListen != nil {
		a.cancelListen()
	}
	a.cancelListen = cancel
	a.status.Message = "Listening..."
	a.status.IsError = false
	a.mu.Unlock()
	return lctx, nil
}

// awaitTranscript opens recognition sessions until one yields a final
// transcript. Transient failures are retried after a fixed delay.
func (a *Assistant) awaitTranscript(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.RecognizerRetries; attempt++ {
		if attempt > 0 {
			a.log.Debug("assistant: retrying recognition", "attempt", attempt, "error", lastErr)
			t := time.NewTimer(a.cfg.RecognizerRetryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}

		results, err := a.rec.Listen(ctx)
		if err != nil {
			if errors.Is(err, speech.ErrBusy) {
				lastErr = err
				continue
			}
			return "", err
		}

		text, err, transient := a.drain(results)
		if err == nil && text != "" {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err != nil && !transient {
			return "", err
		}
		lastErr = err
		if lastErr == nil {
			lastErr = errors.New("assistant: session ended without a result")
		}
	}
	return "", lastErr
}

func (a *Assistant) drain(results <-chan speech.Result) (text string, err error, transient bool) {
	for r := range results {
		switch {
		case r.Err != nil:
			err, transient = r.Err, r.Transient
		case r.Final:
			text = r.Text
		default:
			a.log.Debug("assistant: partial result", "text", r.Text)
		}
	}
	return text, err, transient
}

func (a *Assistant) finishListening(ctx context.Context, text string, err error) (string, error) {
	if err != nil {
		if a.m.FireIf(Listening, EvFail) {
			a.setStatus(func(s *Status) { s.Message = "Recognition error"; s.IsError = true })
			a.log.Warn("assistant: recognition failed", "error", err)
			return "", err
		}
		return "", ErrStopped
	}
	if !a.m.FireIf(Listening, EvTranscript) {
		a.log.Debug("assistant: transcript after stop dropped", "text", text)
		return "", ErrStopped
	}
	return a.process(ctx, text), nil
}

// HandleCommand processes a typed or otherwise recognized command. A second
// command while one is in flight fails with ErrBusy.
func (a *Assistant) HandleCommand(ctx context.Context, command string) (string, error) {
	if _, err := a.m.Fire(EvCommand); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return a.process(ctx, command), nil
}

// process runs one command from Processing back to Idle and returns what
// was spoken.
func (a *Assistant) process(ctx context.Context, command string) string {
	command = strings.TrimSpace(command)
	a.setStatus(func(s *Status) {
		s.LastCommand = command
		s.Message = "Processing: " + command
		s.IsError = false
	})
	a.log.Info("assistant: command", "text", command)

	response := a.respond(ctx, command)

	if _, err := a.m.Fire(EvRespond); err != nil {
		a.log.Error("assistant: state out of sync", "error", err)
	}
	if _, err := a.speaker.Speak(ctx, response); err != nil {
		a.log.Warn("assistant: speak failed", "error", err)
	}
	if _, err := a.m.Fire(EvDone); err != nil {
		a.log.Error("assistant: state out of sync", "error", err)
	}
	a.setStatus(func(s *Status) {
		s.Message = response
		s.LastResponse = response
	})
	return response
}

func (a *Assistant) respond(ctx context.Context, command string) (response string) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("assistant: command panic", "command", command, "panic", r)
			response = MsgInternalError
		}
	}()

	svc, ok := a.h.Get()
	if !ok {
		return MsgEnableService
	}
	snap := svc.CurrentScreen()
	if snap.Empty() {
		return MsgNoScreenData
	}

	resp := a.interp.Interpret(ctx, command, snap)
	a.log.Debug("assistant: interpreted", "action", resp.Action, "target", resp.TargetElementText, "explanation", resp.Explanation)

	exec := svc.Executor()
	switch resp.Action {
	case ai.ActionClick:
		target := resp.TargetElementText
		if target == "" {
			return MsgNoClickTarget
		}
		if _, err := exec.ClickByText(ctx, target); err != nil {
			a.log.Info("assistant: click failed", "target", target, "error", err)
			return "Couldn't find " + target + " on screen"
		}
		return "Clicked " + target

	case ai.ActionScroll:
		if resp.ScrollDirection == "" {
			return MsgNoScrollDir
		}
		if err := exec.Scroll(ctx, resp.ScrollDirection); err != nil {
			a.log.Info("assistant: scroll failed", "direction", resp.ScrollDirection, "error", err)
			return MsgScrollFailed
		}
		return "Scrolled " + string(resp.ScrollDirection)

	case ai.ActionType:
		if resp.TextToType == "" {
			return MsgNoTypeText
		}
		if err := exec.TypeText(ctx, resp.TextToType); err != nil {
			a.log.Info("assistant: type failed", "error", err)
			if errors.Is(err, executor.ErrNoEditableField) {
				return MsgNoTextField
			}
			return "Couldn't type " + resp.TextToType
		}
		return "Typed: " + resp.TextToType

	case ai.ActionRead, ai.ActionDescribe:
		if resp.TextToSpeak != "" {
			return resp.TextToSpeak
		}
		return Describe(snap, a.cfg.DescribeLimit)

	default:
		if resp.TextToSpeak != "" {
			return resp.TextToSpeak
		}
		return MsgNotUnderstood
	}
}

// Describe names the app and up to limit elements with text.
func Describe(snap *screen.Snapshot, limit int) string {
	var texts []string
	for _, e := range snap.Elements {
		if len(texts) >= limit {
			break
		}
		if e.Text != "" {
			texts = append(texts, e.Text)
		}
	}
	if len(texts) == 0 {
		return MsgEmptyScreen
	}
	return "You're in " + snap.Package + ". I can see: " + strings.Join(texts, ", ")
}
