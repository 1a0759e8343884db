// Package prefs stores per-app assistance policy and global assistant
// settings.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Mode selects how the assistant behaves inside an enabled app.
type Mode string

const (
	// ModeAlwaysOn announces the screen automatically on every app switch.
	ModeAlwaysOn Mode = "ALWAYS_ON"
	// ModeOnDemand waits for the user to ask.
	ModeOnDemand Mode = "ON_DEMAND"
	// ModeDisabled turns assistance off for the app.
	ModeDisabled Mode = "DISABLED"
)

// DefaultMode is the mode of an app that never had one set.
const DefaultMode = ModeOnDemand

// ParseMode parses a mode name, case-insensitively. "always", "ondemand" and
// "off" are accepted as short forms.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "ALWAYS_ON", "ALWAYS":
		return ModeAlwaysOn, nil
	case "ON_DEMAND", "ONDEMAND":
		return ModeOnDemand, nil
	case "DISABLED", "OFF":
		return ModeDisabled, nil
	default:
		return "", fmt.Errorf("prefs: unknown mode %q", s)
	}
}

// Policy is the effective assistance policy of one app.
type Policy struct {
	Enabled bool
	Mode    Mode
}

// Active reports whether the assistant may act in the app at all.
func (p Policy) Active() bool { return p.Enabled && p.Mode != ModeDisabled }

// Store is the preference store. Implementations are safe for concurrent
// use.
type Store interface {
	IsAppEnabled(ctx context.Context, pkg string) (bool, error)
	SetAppEnabled(ctx context.Context, pkg string, enabled bool) error
	EnabledApps(ctx context.Context) ([]string, error)

	Mode(ctx context.Context, pkg string) (Mode, error)
	SetMode(ctx context.Context, pkg string, mode Mode) error

	FloatingButtonEnabled(ctx context.Context) (bool, error)
	SetFloatingButtonEnabled(ctx context.Context, enabled bool) error

	AutoReadEnabled(ctx context.Context) (bool, error)
	SetAutoReadEnabled(ctx context.Context, enabled bool) error
}

// Lookup returns the policy for pkg. Store errors are logged and fold into
// the default policy: not enabled, on demand.
func Lookup(ctx context.Context, log *slog.Logger, s Store, pkg string) Policy {
	if log == nil {
		log = slog.Default()
	}
	enabled, err := s.IsAppEnabled(ctx, pkg)
	if err != nil {
		log.Warn("prefs: lookup enabled failed", "package", pkg, "error", err)
		return Policy{Mode: DefaultMode}
	}
	mode, err := s.Mode(ctx, pkg)
	if err != nil {
		log.Warn("prefs: lookup mode failed", "package", pkg, "error", err)
		mode = DefaultMode
	}
	return Policy{Enabled: enabled, Mode: mode}
}
