// Package speech is the boundary to speech synthesis and recognition.
//
// Speaking is fire-and-forget with queue-flush semantics: a new utterance
// interrupts the one in progress. Recognition is session based: Listen
// returns at once and results arrive on a channel that closes when the
// session ends.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrEmptyUtterance is returned when asked to speak blank text.
	ErrEmptyUtterance = errors.New("speech: empty utterance")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("speech: closed")
	// ErrBusy is returned by a recognizer that already has a session open.
	ErrBusy = errors.New("speech: recognizer busy")
)

// Speaker speaks text.
type Speaker interface {
	// Speak starts an utterance and returns its id without waiting for it
	// to finish. Any utterance in progress is interrupted.
	Speak(ctx context.Context, text string) (string, error)
	// Stop interrupts the utterance in progress, if any.
	Stop()
}

// Engine renders one utterance. Synthesize blocks until the utterance is
// finished or ctx is canceled.
type Engine interface {
	Synthesize(ctx context.Context, id, text string) error
}

// FlushingSpeaker runs utterances on an Engine one at a time. Starting a new
// utterance cancels the previous one and waits for it to wind down before
// the engine is called again.
type FlushingSpeaker struct {
	engine Engine
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewFlushingSpeaker creates a FlushingSpeaker.
func NewFlushingSpeaker(engine Engine, log *slog.Logger) *FlushingSpeaker {
	if log == nil {
		log = slog.Default()
	}
	return &FlushingSpeaker{engine: engine, log: log}
}

// Speak implements Speaker. The utterance is detached from ctx cancellation
// but keeps its values.
func (s *FlushingSpeaker) Speak(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyUtterance
	}
	id := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	uctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	prev, done := s.done, make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		if uctx.Err() != nil {
			s.log.Debug("speech: utterance flushed before start", "id", id)
			return
		}
		err := s.engine.Synthesize(uctx, id, text)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			s.log.Debug("speech: utterance interrupted", "id", id)
		default:
			s.log.Warn("speech: synthesis failed", "id", id, "error", err)
		}
	}()
	return id, nil
}

// Stop implements Speaker.
func (s *FlushingSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the latest utterance has finished.
func (s *FlushingSpeaker) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops speaking and rejects further utterances.
func (s *FlushingSpeaker) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
