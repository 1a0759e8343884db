package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS enabled_apps (
	package TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS app_modes (
	package TEXT PRIMARY KEY,
	mode    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const (
	keyFloatingButton = "floating_button_enabled"
	keyAutoRead       = "auto_read_enabled"
)

// SQLite is a Store persisted to an SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the preference database at path. Parent
// directories are created as needed. ":memory:" opens a private in-memory
// database.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("prefs: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("prefs: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: exec schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) IsAppEnabled(ctx context.Context, pkg string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM enabled_apps WHERE package = ?`, pkg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: enabled %s: %w", pkg, err)
	}
	return true, nil
}

func (s *SQLite) SetAppEnabled(ctx context.Context, pkg string, enabled bool) error {
	var err error
	if enabled {
		_, err = s.db.ExecContext(ctx, `INSERT OR IGNORE INTO enabled_apps (package) VALUES (?)`, pkg)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM enabled_apps WHERE package = ?`, pkg)
	}
	if err != nil {
		return fmt.Errorf("prefs: set enabled %s: %w", pkg, err)
	}
	return nil
}

func (s *SQLite) EnabledApps(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT package FROM enabled_apps ORDER BY package`)
	if err != nil {
		return nil, fmt.Errorf("prefs: enabled apps: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var pkg string
		if err := rows.Scan(&pkg); err != nil {
			return nil, fmt.Errorf("prefs: scan enabled app: %w", err)
		}
		out = append(out, pkg)
	}
	return out, rows.Err()
}

func (s *SQLite) Mode(ctx context.Context, pkg string) (Mode, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT mode FROM app_modes WHERE package = ?`, pkg).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultMode, nil
	}
	if err != nil {
		return DefaultMode, fmt.Errorf("prefs: mode %s: %w", pkg, err)
	}
	mode, err := ParseMode(raw)
	if err != nil {
		return DefaultMode, err
	}
	return mode, nil
}

func (s *SQLite) SetMode(ctx context.Context, pkg string, mode Mode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_modes (package, mode) VALUES (?, ?)
		 ON CONFLICT(package) DO UPDATE SET mode = excluded.mode`, pkg, string(mode))
	if err != nil {
		return fmt.Errorf("prefs: set mode %s: %w", pkg, err)
	}
	return nil
}

func (s *SQLite) FloatingButtonEnabled(ctx context.Context) (bool, error) {
	return s.boolSetting(ctx, keyFloatingButton, true)
}

func (s *SQLite) SetFloatingButtonEnabled(ctx context.Context, enabled bool) error {
	return s.setBoolSetting(ctx, keyFloatingButton, enabled)
}

func (s *SQLite) AutoReadEnabled(ctx context.Context) (bool, error) {
	return s.boolSetting(ctx, keyAutoRead, false)
}

func (s *SQLite) SetAutoReadEnabled(ctx context.Context, enabled bool) error {
	return s.setBoolSetting(ctx, keyAutoRead, enabled)
}

func (s *SQLite) boolSetting(ctx context.Context, key string, def bool) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("prefs: setting %s: %w", key, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("prefs: setting %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLite) setBoolSetting(ctx context.Context, key string, v bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, strconv.FormatBool(v))
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}
