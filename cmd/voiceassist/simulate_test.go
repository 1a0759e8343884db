package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/v0xg/voiceassist/internal/ai"
	"github.com/v0xg/voiceassist/internal/config"
)

func TestLoadScenario(t *testing.T) {
	sc, err := loadScenario(filepath.Join("testdata", "mail.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Self != "com.voiceassist" || len(sc.Apps) != 1 || len(sc.Steps) != 6 {
		t.Errorf("scenario: %+v", sc)
	}
	if sc.Steps[1].Wait != 200*time.Millisecond {
		t.Errorf("wait step: %v", sc.Steps[1].Wait)
	}
	if sc.Steps[3].Replace == nil || len(sc.Steps[3].Replace.Children) != 2 {
		t.Errorf("replace step: %+v", sc.Steps[3])
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("steps: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadScenario(empty); err == nil {
		t.Error("expected error for scenario without apps")
	}
}

func TestRunScenario(t *testing.T) {
	log = slog.New(slog.NewTextHandler(io.Discard, nil))
	sc, err := loadScenario(filepath.Join("testdata", "mail.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	c := config.Default()
	c.Assist.SettleDelay = 10 * time.Millisecond

	var out bytes.Buffer
	if err := runScenario(context.Background(), c, sc, ai.RuleInterpreter{}, &out); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{
		"Mail opened. Available options: Inbox, Compose",
		"Clicked Compose",
		"Typed: ada@example.com",
		"Clicked Send",
		"✓ Done",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("transcript missing %q:\n%s", want, got)
		}
	}
}
