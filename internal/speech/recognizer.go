package speech

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sashabaranov/go-openai"
)

// Result is one recognition result. A session delivers any number of
// partial results followed by one final result or one error.
type Result struct {
	Text  string
	Final bool
	Err   error
	// Transient marks errors worth retrying: a busy recognizer, a network
	// timeout.
	Transient bool
}

// Recognizer turns speech into text.
type Recognizer interface {
	// Listen opens a recognition session. It returns immediately; the
	// channel is closed when the session ends.
	Listen(ctx context.Context) (<-chan Result, error)
}

// LineRecognizer treats every line read from r as one final transcript.
// A single goroutine owns the reader; sessions take lines from it.
type LineRecognizer struct {
	lines  chan string
	held   chan string
	errc   chan error
	start  sync.Once
	r      io.Reader
	active atomic.Bool
}

// NewLineRecognizer creates a LineRecognizer reading from r.
func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{r: r, lines: make(chan string), held: make(chan string, 1), errc: make(chan error, 1)}
}

func (l *LineRecognizer) read() {
	sc := bufio.NewScanner(l.r)
	for sc.Scan() {
		l.lines <- sc.Text()
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	l.errc <- err
}

// Listen implements Recognizer.
func (l *LineRecognizer) Listen(ctx context.Context) (<-chan Result, error) {
	if !l.active.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	l.start.Do(func() { go l.read() })

	out := make(chan Result, 2)
	go func() {
		defer close(out)
		defer l.active.Store(false)
		select {
		case line := <-l.held:
			out <- Result{Text: line, Final: true}
			return
		default:
		}
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-l.errc:
				// Keep the terminal error visible to later sessions.
				l.errc <- err
				out <- Result{Err: err}
				return
			case line := <-l.lines:
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if ctx.Err() != nil {
					// Read as the session ended; the next session gets it.
					l.held <- line
					return
				}
				out <- Result{Text: line, Final: true}
				return
			}
		}
	}()
	return out, nil
}

// WhisperRecognizer transcribes audio files with the OpenAI transcription
// endpoint. The file paths come as final transcripts from Paths; text that
// does not name an existing file passes through unchanged.
type WhisperRecognizer struct {
	client *openai.Client
	Paths  Recognizer
	Model  string
}

// NewWhisperRecognizer creates a WhisperRecognizer using OPENAI_API_KEY.
func NewWhisperRecognizer(paths Recognizer) (*WhisperRecognizer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	return &WhisperRecognizer{client: openai.NewClient(apiKey), Paths: paths, Model: openai.Whisper1}, nil
}

// Listen implements Recognizer.
func (w *WhisperRecognizer) Listen(ctx context.Context) (<-chan Result, error) {
	in, err := w.Paths.Listen(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan Result, 2)
	go func() {
		defer close(out)
		for r := range in {
			if !r.Final || r.Err != nil {
				out <- r
				continue
			}
			out <- w.transcribe(ctx, r.Text)
		}
	}()
	return out, nil
}

func (w *WhisperRecognizer) transcribe(ctx context.Context, path string) Result {
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return Result{Text: path, Final: true}
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.Model,
		FilePath: path,
	})
	if err != nil {
		return Result{
			Err:       fmt.Errorf("speech: transcribe %s: %w", filepath.Base(path), err),
			Transient: transient(err),
		}
	}
	return Result{Text: strings.TrimSpace(resp.Text), Final: true}
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrBusy) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}
