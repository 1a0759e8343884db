// Package wake listens in the background for a wake phrase and hands over
// to command listening when it hears one.
package wake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/v0xg/voiceassist/internal/speech"
)

// ErrRunning is returned by Start on a running Listener.
var ErrRunning = errors.New("wake: already running")

// DefaultPhrases are matched case-insensitively anywhere in a transcript.
var DefaultPhrases = []string{"hey assistant", "ok assistant", "hello assistant"}

// Config tunes the restart cadence.
type Config struct {
	// SessionRestart is the pause after a session ends normally.
	SessionRestart time.Duration `yaml:"session_restart"`
	// ErrorRestart is the pause after a failed session.
	ErrorRestart time.Duration `yaml:"error_restart"`
	Phrases      []string      `yaml:"phrases"`
}

// DefaultConfig returns the stock cadence.
func DefaultConfig() Config {
	return Config{
		SessionRestart: 500 * time.Millisecond,
		ErrorRestart:   time.Second,
		Phrases:        DefaultPhrases,
	}
}

// Handler runs after a wake phrase. The recognition session that heard the
// phrase has ended by then, so the handler may open its own.
type Handler func(ctx context.Context, transcript string)

// MatchesWakePhrase reports whether text contains one of phrases.
func MatchesWakePhrase(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Listener restarts recognition sessions until stopped.
type Listener struct {
	cfg    Config
	rec    speech.Recognizer
	onWake Handler
	log    *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped Listener.
func New(cfg Config, rec speech.Recognizer, onWake Handler, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.Phrases) == 0 {
		cfg.Phrases = DefaultPhrases
	}
	return &Listener{cfg: cfg, rec: rec, onWake: onWake, log: log}
}

// Start begins background listening.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return ErrRunning
	}
	l.gen++
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.loop(ctx, l.gen, l.done)
	l.log.Info("wake: listening", "phrases", l.cfg.Phrases)
	return nil
}

// Stop ends background listening and waits for the loop to exit. A pending
// restart belongs to the old generation and never fires.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.gen++
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.log.Info("wake: stopped")
}

// Done is closed when the listening loop exits, either after Stop or
// because the recognizer ran out of input. It is nil before Start.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Running reports whether Start was called without a matching Stop.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Listener) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

func (l *Listener) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		delay := l.cfg.SessionRestart
		if err := l.session(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				l.log.Info("wake: input ended")
				return
			}
			l.log.Debug("wake: session failed", "error", err)
			delay = l.cfg.ErrorRestart
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if !l.current(gen) {
			return
		}
	}
}

func (l *Listener) session(ctx context.Context) error {
	results, err := l.rec.Listen(ctx)
	if err != nil {
		return err
	}

	var heard string
	var sessionErr error
	for r := range results {
		switch {
		case r.Err != nil:
			sessionErr = r.Err
		case r.Final:
			if MatchesWakePhrase(r.Text, l.cfg.Phrases) {
				heard = r.Text
			}
		case MatchesWakePhrase(r.Text, l.cfg.Phrases):
			l.log.Debug("wake: partial match", "text", r.Text)
		}
	}

	if heard != "" && ctx.Err() == nil {
		l.log.Info("wake: phrase detected", "text", heard)
		if l.onWake != nil {
			l.onWake(ctx, heard)
		}
	}
	return sessionErr
}
