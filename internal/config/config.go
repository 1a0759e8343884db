// Package config loads voiceassist settings: built-in defaults, then an
// optional YAML file, then VOICEASSIST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/v0xg/voiceassist/internal/assist"
	"github.com/v0xg/voiceassist/internal/assistant"
	"github.com/v0xg/voiceassist/internal/executor"
	"github.com/v0xg/voiceassist/internal/gate"
	"github.com/v0xg/voiceassist/internal/platform/browser"
	"github.com/v0xg/voiceassist/internal/service"
	"github.com/v0xg/voiceassist/internal/wake"
)

// Voice engine and recognizer names.
const (
	EngineConsole = "console"
	EngineOpenAI  = "openai"

	RecognizerStdin   = "stdin"
	RecognizerWhisper = "whisper"
)

// AI selects the command interpreter.
type AI struct {
	// Provider is rules, claude or openai.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Voice configures speech output and input.
type Voice struct {
	Engine         string        `yaml:"engine"`
	AudioDir       string        `yaml:"audio_dir"`
	WordsPerMinute int           `yaml:"words_per_minute"`
	FocusTimeout   time.Duration `yaml:"focus_timeout"`
	Recognizer     string        `yaml:"recognizer"`
}

// Prefs locates the preference database.
type Prefs struct {
	DBPath string `yaml:"db_path"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the whole configuration tree.
type Config struct {
	Gate      gate.Config      `yaml:"gate"`
	Assist    assist.Config    `yaml:"assist"`
	Service   service.Config   `yaml:"service"`
	Executor  executor.Options `yaml:"executor"`
	Assistant assistant.Config `yaml:"assistant"`
	Wake      wake.Config      `yaml:"wake"`
	Browser   browser.Options  `yaml:"browser"`
	AI        AI               `yaml:"ai"`
	Voice     Voice            `yaml:"voice"`
	Prefs     Prefs            `yaml:"prefs"`
	Log       Log              `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gate:      gate.DefaultConfig(),
		Assist:    assist.DefaultConfig(),
		Service:   service.DefaultConfig(),
		Executor:  executor.DefaultOptions(),
		Assistant: assistant.DefaultConfig(),
		Wake:      wake.DefaultConfig(),
		Browser:   browser.DefaultOptions(),
		AI:        AI{Provider: "rules"},
		Voice: Voice{
			Engine:         EngineConsole,
			AudioDir:       filepath.Join(os.TempDir(), "voiceassist"),
			WordsPerMinute: 180,
			FocusTimeout:   2 * time.Second,
			Recognizer:     RecognizerStdin,
		},
		Prefs: Prefs{DBPath: defaultDBPath()},
		Log:   Log{Level: "info", Format: "text"},
	}
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "voiceassist.db"
	}
	return filepath.Join(dir, "voiceassist", "prefs.db")
}

// Load builds the configuration. path may be empty; a missing file is not
// an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.AI.Provider = getEnv("VOICEASSIST_AI_PROVIDER", c.AI.Provider)
	c.AI.Model = getEnv("VOICEASSIST_AI_MODEL", c.AI.Model)
	c.Voice.Engine = getEnv("VOICEASSIST_VOICE_ENGINE", c.Voice.Engine)
	c.Voice.AudioDir = getEnv("VOICEASSIST_AUDIO_DIR", c.Voice.AudioDir)
	c.Voice.Recognizer = getEnv("VOICEASSIST_RECOGNIZER", c.Voice.Recognizer)
	c.Prefs.DBPath = getEnv("VOICEASSIST_PREFS_DB", c.Prefs.DBPath)
	c.Log.Level = getEnv("VOICEASSIST_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("VOICEASSIST_LOG_FORMAT", c.Log.Format)
	c.Browser.ProfileDir = getEnv("VOICEASSIST_BROWSER_PROFILE", c.Browser.ProfileDir)
	c.Browser.Headless = getEnvAsBool("VOICEASSIST_BROWSER_HEADLESS", c.Browser.Headless)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"VOICEASSIST_DEBOUNCE", &c.Gate.Debounce},
		{"VOICEASSIST_THROTTLE", &c.Gate.Throttle},
		{"VOICEASSIST_SETTLE_DELAY", &c.Assist.SettleDelay},
		{"VOICEASSIST_COOLDOWN", &c.Assist.Cooldown},
		{"VOICEASSIST_EMPTY_RETRY_DELAY", &c.Assist.EmptyRetryDelay},
	}
	for _, d := range durations {
		v, err := getEnvAsDuration(d.key, *d.dst)
		if err != nil {
			return err
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"VOICEASSIST_MAX_OPTIONS", &c.Assist.MaxOptions},
		{"VOICEASSIST_WORKERS", &c.Service.Workers},
		{"VOICEASSIST_QUEUE_SIZE", &c.Service.QueueSize},
	}
	for _, i := range ints {
		v, err := getEnvAsInt(i.key, *i.dst)
		if err != nil {
			return err
		}
		*i.dst = v
	}
	return nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Gate.Debounce < 0 || c.Gate.Throttle < 0 {
		errs = append(errs, errors.New("gate: debounce and throttle must not be negative"))
	}
	if c.Assist.SettleDelay < 0 || c.Assist.Cooldown < 0 || c.Assist.EmptyRetryDelay < 0 {
		errs = append(errs, errors.New("assist: delays must not be negative"))
	}
	if c.Assist.MaxOptions <= 0 {
		errs = append(errs, fmt.Errorf("assist: max_options must be positive, got %d", c.Assist.MaxOptions))
	}
	if c.Service.Workers <= 0 || c.Service.QueueSize <= 0 {
		errs = append(errs, errors.New("service: workers and queue_size must be positive"))
	}
	switch c.AI.Provider {
	case "", "rules", "claude", "anthropic", "openai", "gpt":
	default:
		errs = append(errs, fmt.Errorf("ai: unknown provider %q (want rules, claude or openai)", c.AI.Provider))
	}
	switch c.Voice.Engine {
	case EngineConsole, EngineOpenAI:
	default:
		errs = append(errs, fmt.Errorf("voice: unknown engine %q", c.Voice.Engine))
	}
	switch c.Voice.Recognizer {
	case RecognizerStdin, RecognizerWhisper:
	default:
		errs = append(errs, fmt.Errorf("voice: unknown recognizer %q", c.Voice.Recognizer))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log: format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// NewLogger builds the slog logger described by c.Log.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log: invalid level %q", s)
	}
	return l, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid value for %s: %q (expected integer)", key, value)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid value for %s: %q (expected duration)", key, value)
	}
	return d, nil
}
