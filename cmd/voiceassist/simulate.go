package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/v0xg/voiceassist/internal/ai"
	"github.com/v0xg/voiceassist/internal/assistant"
	"github.com/v0xg/voiceassist/internal/config"
	"github.com/v0xg/voiceassist/internal/platform/memtree"
	"github.com/v0xg/voiceassist/internal/prefs"
	"github.com/v0xg/voiceassist/internal/service"
)

// Scenario is a scripted session against the in-memory platform.
type Scenario struct {
	Self  string            `yaml:"self"`
	Apps  []memtree.App     `yaml:"apps"`
	Modes map[string]string `yaml:"modes"`
	Steps []Step            `yaml:"steps"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Launch  string        `yaml:"launch"`
	Say     string        `yaml:"say"`
	Replace *memtree.Node `yaml:"replace"`
	Wait    time.Duration `yaml:"wait"`
}

func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Self == "" {
		sc.Self = "com.voiceassist"
	}
	if len(sc.Apps) == 0 {
		return nil, errors.New("scenario has no apps")
	}
	return &sc, nil
}

func simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay app switches and commands against a simulated device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadScenario(args[0])
			if err != nil {
				return err
			}
			interp, err := ai.NewInterpreter(cfg.AI.Provider, cfg.AI.Model)
			if err != nil {
				return fmt.Errorf("interpreter init failed: %w", err)
			}
			return runScenario(cmd.Context(), cfg, sc, interp, os.Stdout)
		},
	}
}

// runScenario plays sc and writes the transcript to out.
func runScenario(ctx context.Context, cfg *config.Config, sc *Scenario, interp ai.Interpreter, w io.Writer) error {
	// The speaker writes from its own goroutine.
	out := &lockedWriter{w: w}

	dev := memtree.NewDevice(sc.Self)
	for _, app := range sc.Apps {
		dev.Install(app)
	}

	store := prefs.NewMemory()
	for pkg, m := range sc.Modes {
		mode, err := prefs.ParseMode(m)
		if err != nil {
			return fmt.Errorf("scenario mode for %s: %w", pkg, err)
		}
		if err := store.SetAppEnabled(ctx, pkg, true); err != nil {
			return err
		}
		if err := store.SetMode(ctx, pkg, mode); err != nil {
			return err
		}
	}

	speakerCfg := *cfg
	speakerCfg.Voice.Engine = config.EngineConsole
	speakerCfg.Voice.WordsPerMinute = 0
	speaker, err := newSpeaker(&speakerCfg, out)
	if err != nil {
		return err
	}
	defer speaker.Close()

	var handle service.Handle
	svc := newService(cfg, dev, store, speaker)
	if err := handle.Start(ctx, svc); err != nil {
		return err
	}
	defer handle.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go svc.Run(ctx, dev.Events())

	a := assistant.New(cfg.Assistant, &handle, interp, speaker, nil, log)

	for i, st := range sc.Steps {
		switch {
		case st.Launch != "":
			fmt.Fprintf(out, "→ [%d] launch %s\n", i+1, st.Launch)
			if err := dev.Launch(st.Launch); err != nil {
				return err
			}
			if err := waitForScreen(ctx, svc, st.Launch); err != nil {
				return err
			}
		case st.Replace != nil:
			fmt.Fprintf(out, "→ [%d] screen changes\n", i+1)
			dev.Replace(st.Replace)
		case st.Say != "":
			fmt.Fprintf(out, "→ [%d] say %q\n", i+1, st.Say)
			if err := svc.Refresh(ctx); err != nil {
				log.Warn("voiceassist: refresh failed", "error", err)
			}
			if _, err := a.HandleCommand(ctx, st.Say); err != nil {
				return err
			}
		case st.Wait > 0:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(st.Wait):
			}
		default:
			return fmt.Errorf("scenario step %d is empty", i+1)
		}
		speaker.Wait()
	}

	processed, dropped := svc.Stats()
	fmt.Fprintf(out, "✓ Done (%d extractions, %d dropped)\n", processed, dropped)
	return nil
}

// waitForScreen blocks until the published snapshot belongs to pkg. The
// gate may reject the switch, so it gives up quietly after a while.
func waitForScreen(ctx context.Context, svc *service.Service, pkg string) error {
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if svc.CurrentScreen().Package == pkg {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			log.Warn("voiceassist: screen not captured", "package", pkg)
			return nil
		case <-tick.C:
		}
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
