package prefs

import (
	"context"
	"sort"
	"sync"
)

// Memory is a Store kept in process memory.
type Memory struct {
	mu             sync.RWMutex
	enabled        map[string]bool
	modes          map[string]Mode
	floatingButton bool
	autoRead       bool
}

// NewMemory creates an empty Memory store with the default settings.
func NewMemory() *Memory {
	return &Memory{
		enabled:        make(map[string]bool),
		modes:          make(map[string]Mode),
		floatingButton: true,
	}
}

func (m *Memory) IsAppEnabled(_ context.Context, pkg string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[pkg], nil
}

func (m *Memory) SetAppEnabled(_ context.Context, pkg string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enabled {
		m.enabled[pkg] = true
	} else {
		delete(m.enabled, pkg)
	}
	return nil
}

func (m *Memory) EnabledApps(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.enabled))
	for pkg := range m.enabled {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Mode(_ context.Context, pkg string) (Mode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mode, ok := m.modes[pkg]; ok {
		return mode, nil
	}
	return DefaultMode, nil
}

func (m *Memory) SetMode(_ context.Context, pkg string, mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pkg] = mode
	return nil
}

func (m *Memory) FloatingButtonEnabled(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.floatingButton, nil
}

func (m *Memory) SetFloatingButtonEnabled(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.floatingButton = enabled
	return nil
}

func (m *Memory) AutoReadEnabled(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.autoRead, nil
}

func (m *Memory) SetAutoReadEnabled(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoRead = enabled
	return nil
}
