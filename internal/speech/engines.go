package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// WriterEngine prints utterances to W. With a non-zero WordsPerMinute it
// also holds the utterance for as long as reading it aloud would take, so
// interruptions behave like on a real voice.
type WriterEngine struct {
	W              io.Writer
	Prefix         string
	WordsPerMinute int

	mu sync.Mutex
}

// Synthesize implements Engine.
func (e *WriterEngine) Synthesize(ctx context.Context, id, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	_, err := fmt.Fprintf(e.W, "%s%s\n", e.Prefix, text)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("speech: write: %w", err)
	}
	if e.WordsPerMinute <= 0 {
		return nil
	}

	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(e.WordsPerMinute)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenAIEngine renders utterances with the OpenAI speech endpoint and
// stores each one as <Dir>/<id>.mp3.
type OpenAIEngine struct {
	client *openai.Client
	Dir    string
	Voice  openai.SpeechVoice
	Model  openai.SpeechModel
}

// NewOpenAIEngine creates an OpenAIEngine using OPENAI_API_KEY.
func NewOpenAIEngine(dir string) (*OpenAIEngine, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: mkdir %s: %w", dir, err)
	}
	return &OpenAIEngine{
		client: openai.NewClient(apiKey),
		Dir:    dir,
		Voice:  openai.VoiceAlloy,
		Model:  openai.TTSModel1,
	}, nil
}

// Synthesize implements Engine.
func (e *OpenAIEngine) Synthesize(ctx context.Context, id, text string) error {
	resp, err := e.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          e.Model,
		Input:          text,
		Voice:          e.Voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("speech: openai: %w", err)
	}
	defer resp.Close()

	path := filepath.Join(e.Dir, id+".mp3")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("speech: create %s: %w", path, err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close()
		return fmt.Errorf("speech: write %s: %w", path, err)
	}
	return f.Close()
}
