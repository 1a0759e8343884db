package speech

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// AudioFocus arbitrates the audio output between producers.
type AudioFocus interface {
	// Request asks for transient, ducking focus.
	Request(ctx context.Context) error
	// Abandon gives back focus obtained from a successful Request.
	Abandon()
}

// FocusEngine requests audio focus around every utterance. A failed request
// is logged and the utterance is spoken anyway.
type FocusEngine struct {
	Engine Engine
	Focus  AudioFocus
	Log    *slog.Logger
}

// Synthesize implements Engine.
func (e *FocusEngine) Synthesize(ctx context.Context, id, text string) error {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	if err := e.Focus.Request(ctx); err != nil {
		log.Warn("speech: audio focus not granted, speaking anyway", "id", id, "error", err)
	} else {
		defer e.Focus.Abandon()
	}
	return e.Engine.Synthesize(ctx, id, text)
}

// LocalFocus is an in-process AudioFocus: one holder at a time, requests
// give up after Timeout.
type LocalFocus struct {
	sem     *semaphore.Weighted
	Timeout time.Duration
}

// NewLocalFocus creates a LocalFocus.
func NewLocalFocus(timeout time.Duration) *LocalFocus {
	return &LocalFocus{sem: semaphore.NewWeighted(1), Timeout: timeout}
}

// Request implements AudioFocus.
func (f *LocalFocus) Request(ctx context.Context) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	return f.sem.Acquire(ctx, 1)
}

// Abandon implements AudioFocus.
func (f *LocalFocus) Abandon() { f.sem.Release(1) }
