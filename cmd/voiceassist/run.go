package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/v0xg/voiceassist/internal/ai"
	"github.com/v0xg/voiceassist/internal/assistant"
	"github.com/v0xg/voiceassist/internal/config"
	"github.com/v0xg/voiceassist/internal/platform"
	"github.com/v0xg/voiceassist/internal/platform/browser"
	"github.com/v0xg/voiceassist/internal/prefs"
	"github.com/v0xg/voiceassist/internal/service"
	"github.com/v0xg/voiceassist/internal/speech"
	"github.com/v0xg/voiceassist/internal/wake"
)

var (
	provider string
	model    string
	voice    string
	useWake  bool
	headful  bool
	profile  string
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Open a site in the browser platform and assist on it",
		Long: `run opens the URL in Chromium, treats each site as an app and starts the
accessibility service on it. Commands are read one per line from stdin;
with --wake, a line must contain a wake phrase ("hey assistant") first.`,
		Args: cobra.ExactArgs(1),
		RunE: run,
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Command interpreter: rules, claude, openai (default: from config)")
	cmd.Flags().StringVar(&model, "model", "", "Specific model override")
	cmd.Flags().StringVar(&voice, "voice", "", "Speech output: console, openai (default: from config)")
	cmd.Flags().BoolVar(&useWake, "wake", false, "Wait for a wake phrase before each command")
	cmd.Flags().BoolVar(&headful, "headful", false, "Show the browser window")
	cmd.Flags().StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url := args[0]

	if provider != "" {
		cfg.AI.Provider = provider
	}
	if model != "" {
		cfg.AI.Model = model
	}
	if voice != "" {
		cfg.Voice.Engine = voice
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if profile != "" {
		cfg.Browser.ProfileDir = profile
	}

	store, err := openPrefs()
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("→ Launching browser on %s... ", url)
	b, err := browser.Launch(ctx, url, cfg.Browser, log)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("browser launch failed: %w", err)
	}
	defer b.Close()
	fmt.Printf("done (%s)\n", browser.PackageFromURL(url))

	fmt.Printf("→ Preparing %s interpreter... ", cfg.AI.Provider)
	interp, err := ai.NewInterpreter(cfg.AI.Provider, cfg.AI.Model)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("interpreter init failed: %w", err)
	}
	fmt.Println("done")

	speaker, err := newSpeaker(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer speaker.Close()

	rec, err := newRecognizer(cfg, os.Stdin)
	if err != nil {
		return err
	}

	var handle service.Handle
	svc := newService(cfg, b, store, speaker)
	if err := handle.Start(ctx, svc); err != nil {
		return err
	}
	defer handle.Stop()

	a := assistant.New(cfg.Assistant, &handle, interp, speaker, rec, log)
	fmt.Println("→ Listening (Ctrl+C to quit)")
	return serve(ctx, b, svc, a, rec)
}

// serve pumps platform events into the service and commands into the
// assistant until stdin ends or ctx is canceled.
func serve(ctx context.Context, events platform.EventSource, svc *service.Service, a *assistant.Assistant, rec speech.Recognizer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := svc.Run(ctx, events.Events())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if useWake {
		l := wake.New(cfg.Wake, rec, func(ctx context.Context, heard string) {
			fmt.Println("→ Wake phrase heard, listening for a command")
			if _, err := a.ListenOnce(ctx); err != nil && !errors.Is(err, io.EOF) {
				log.Warn("voiceassist: command failed", "error", err)
			}
		}, log)
		if err := l.Start(ctx); err != nil {
			return err
		}
		done := l.Done()
		g.Go(func() error {
			defer l.Stop()
			select {
			case <-ctx.Done():
			case <-done:
				cancel()
			}
			return nil
		})
		return g.Wait()
	}

	g.Go(func() error {
		defer cancel()
		for {
			_, err := a.ListenOnce(ctx)
			switch {
			case err == nil:
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				return nil
			default:
				log.Warn("voiceassist: command failed", "error", err)
			}
		}
	})
	return g.Wait()
}

func newService(cfg *config.Config, p platform.Platform, store prefs.Store, speaker speech.Speaker) *service.Service {
	return service.New(cfg.Service, service.Deps{
		Platform: p,
		Prefs:    store,
		Speaker:  speaker,
		Gate:     cfg.Gate,
		Assist:   cfg.Assist,
		Executor: cfg.Executor,
	}, log)
}

func newSpeaker(cfg *config.Config, out io.Writer) (*speech.FlushingSpeaker, error) {
	var engine speech.Engine
	switch cfg.Voice.Engine {
	case config.EngineOpenAI:
		e, err := speech.NewOpenAIEngine(cfg.Voice.AudioDir)
		if err != nil {
			return nil, fmt.Errorf("speech engine init failed: %w", err)
		}
		engine = e
	default:
		engine = &speech.WriterEngine{W: out, Prefix: "🔊 ", WordsPerMinute: cfg.Voice.WordsPerMinute}
	}
	focused := &speech.FocusEngine{
		Engine: engine,
		Focus:  speech.NewLocalFocus(cfg.Voice.FocusTimeout),
		Log:    log,
	}
	return speech.NewFlushingSpeaker(focused, log), nil
}

func newRecognizer(cfg *config.Config, in io.Reader) (speech.Recognizer, error) {
	lines := speech.NewLineRecognizer(in)
	if cfg.Voice.Recognizer != config.RecognizerWhisper {
		return lines, nil
	}
	w, err := speech.NewWhisperRecognizer(lines)
	if err != nil {
		return nil, fmt.Errorf("recognizer init failed: %w", err)
	}
	return w, nil
}
