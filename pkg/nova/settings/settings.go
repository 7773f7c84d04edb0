// Package settings manages the flat application settings map persisted as
// JSON under Settings/settings.txt. Loading always overlays the stored file
// on top of the defaults so every known key exists, and unknown keys written
// by older builds or the GUI are preserved as-is.
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// Settings is a flat, loosely typed settings map. Values decoded from JSON
// are strings, float64 numbers, bools, or []any.
type Settings map[string]any

// String returns the trimmed string value for key, or def when absent.
func (s Settings) String(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// Float returns the float value for key, accepting JSON numbers and numeric
// strings, or def when absent or unparseable.
func (s Settings) Float(key string, def float64) float64 {
	switch t := s[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns the integer value for key, or def when absent or unparseable.
func (s Settings) Int(key string, def int) int {
	switch t := s[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the boolean value for key, or def when absent.
func (s Settings) Bool(key string, def bool) bool {
	switch t := s[key].(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	return def
}

// Defaults returns the default settings map. Keys mirror what the GUI edits
// plus the generation parameters the pipeline consumes.
func Defaults() Settings {
	return Settings{
		// Style
		"theme":             "cyberpunk",
		"enable_animations": true,
		"font_size":         12,
		"console_width":     980,
		"console_height":    620,

		// Generation
		"max_context_messages": 20,
		"temperature":          0.7,
		"max_tokens":           2048,
		"max_response_length":  300,
		"stop_strings":         []any{},
		"enable_top_p_max":     true,
		"top_p_max":            0.95,
		"enable_top_p_min":     true,
		"top_p_min":            0.05,
		"enable_repeat_penalty": true,
		"repeat_penalty":       1.0,
		"top_k":                40,

		// API client
		"api_provider": "openai",
		"api_key":      "",
		"api_base_url": "https://api.openai.com/v1",
		"model":        "gpt-3.5-turbo",

		// Other
		"auto_save_chats":     true,
		"default_bot":         "Nova",
		"gui_port":            5067,
		"auto_load_last_chat": true,
		"debug_mode":          false,
	}
}

// Manager loads and persists the settings file.
type Manager struct {
	root   *fsrecord.Root
	mu     sync.RWMutex
	values Settings
	logger *slog.Logger
}

// NewManager creates a settings manager and loads (or creates) the settings
// file under the given data root.
func NewManager(root *fsrecord.Root, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		root:   root,
		logger: logger.With("component", "settings"),
	}
	m.load()
	return m
}

// load reads the settings file, overlaying it on the defaults. A missing
// file is created with defaults; a corrupt file falls back to defaults.
func (m *Manager) load() {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.root.SettingsFile()
	data, err := os.ReadFile(path)
	if err != nil {
		m.values = Defaults()
		if saveErr := m.saveLocked(); saveErr != nil {
			m.logger.Warn("could not write default settings", "error", saveErr)
		} else {
			m.logger.Info("created default settings", "path", path)
		}
		return
	}

	merged := Defaults()
	trimmed := strings.TrimSpace(string(data))
	if trimmed != "" {
		var stored map[string]any
		if err := json.Unmarshal([]byte(trimmed), &stored); err != nil {
			m.logger.Error("settings file unreadable, using defaults", "error", err)
		} else {
			for k, v := range stored {
				merged[k] = v
			}
		}
	}
	m.values = merged
}

// saveLocked persists the settings map. Caller holds the lock.
func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.root.SettingsFile()), 0o755); err != nil {
		return fmt.Errorf("creating settings folder: %w", err)
	}
	data, err := json.MarshalIndent(m.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return fsrecord.WriteFileAtomic(m.root.SettingsFile(), data)
}

// GetAll returns a copy of every setting.
func (m *Manager) GetAll() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Settings, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Get returns one setting value, or def when absent.
func (m *Manager) Get(key string, def any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Set stores one setting and persists the file.
func (m *Manager) Set(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return m.saveLocked()
}

// UpdateMultiple merges the given values and persists the file.
func (m *Manager) UpdateMultiple(values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return m.saveLocked()
}

// ResetToDefaults discards every stored value and persists the defaults.
func (m *Manager) ResetToDefaults() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = Defaults()
	return m.saveLocked()
}
