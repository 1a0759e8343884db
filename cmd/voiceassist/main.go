package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/v0xg/voiceassist/internal/config"
	"github.com/v0xg/voiceassist/internal/prefs"
)

var (
	configPath string
	dbPath     string
	verbose    bool

	cfg *config.Config
	log *slog.Logger
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "voiceassist",
		Short: "Voice assistant that reads and drives app screens through accessibility",
		Long: `voiceassist watches the foreground app through an accessibility tree,
announces what is on screen and carries out spoken commands such as
"click login", "scroll down" or "type hello".

Example:
  voiceassist apps enable com.example --mode always_on
  voiceassist run "https://www.example.com"`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("VOICEASSIST_CONFIG"), "YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Preferences database (default: from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(runCmd(), appsCmd(), settingsCmd(), simulateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Prefs.DBPath = dbPath
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log = cfg.NewLogger(os.Stderr)
	slog.SetDefault(log)
	return nil
}

func openPrefs() (*prefs.SQLite, error) {
	store, err := prefs.OpenSQLite(cfg.Prefs.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	return store, nil
}
