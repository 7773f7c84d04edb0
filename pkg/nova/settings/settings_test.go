package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

func newTestManager(t *testing.T) (*Manager, *fsrecord.Root) {
	t.Helper()
	root := fsrecord.NewRoot(t.TempDir())
	return NewManager(root, nil), root
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m, root := newTestManager(t)

	data, err := os.ReadFile(root.SettingsFile())
	require.NoError(t, err, "settings file written on first load")

	var stored map[string]any
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "openai", stored["api_provider"])

	assert.Equal(t, "gpt-3.5-turbo", m.GetAll().String("model", ""))
}

func TestLoadOverlaysStoredOnDefaults(t *testing.T) {
	dir := t.TempDir()
	root := fsrecord.NewRoot(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(root.SettingsFile()), 0o755))
	require.NoError(t, os.WriteFile(root.SettingsFile(), []byte(`{"model": "llama3", "custom_key": 7}`), 0o644))

	m := NewManager(root, nil)
	all := m.GetAll()

	assert.Equal(t, "llama3", all.String("model", ""))
	assert.Equal(t, 7, all.Int("custom_key", 0), "unknown keys preserved")
	assert.Equal(t, "openai", all.String("api_provider", ""), "defaults fill missing keys")
}

func TestCorruptFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	root := fsrecord.NewRoot(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(root.SettingsFile()), 0o755))
	require.NoError(t, os.WriteFile(root.SettingsFile(), []byte("{not json"), 0o644))

	m := NewManager(root, nil)
	assert.Equal(t, "openai", m.GetAll().String("api_provider", ""))
}

func TestUpdateMultiplePersists(t *testing.T) {
	m, root := newTestManager(t)
	require.NoError(t, m.UpdateMultiple(map[string]any{
		"model":        "mistral",
		"api_provider": "localhost",
	}))

	reloaded := NewManager(root, nil)
	assert.Equal(t, "mistral", reloaded.GetAll().String("model", ""))
	assert.Equal(t, "localhost", reloaded.GetAll().String("api_provider", ""))
}

func TestResetToDefaults(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Set("model", "something-else"))
	require.NoError(t, m.ResetToDefaults())
	assert.Equal(t, "gpt-3.5-turbo", m.GetAll().String("model", ""))
}

func TestTypedAccessors(t *testing.T) {
	s := Settings{
		"str":      "  padded  ",
		"floatnum": 0.75,
		"floatstr": "1.25",
		"intnum":   float64(42),
		"intstr":   "17",
		"booltrue": true,
		"boolstr":  "false",
	}

	assert.Equal(t, "padded", s.String("str", ""))
	assert.Equal(t, "fallback", s.String("missing", "fallback"))
	assert.Equal(t, 0.75, s.Float("floatnum", 0))
	assert.Equal(t, 1.25, s.Float("floatstr", 0))
	assert.Equal(t, 42, s.Int("intnum", 0))
	assert.Equal(t, 17, s.Int("intstr", 0))
	assert.True(t, s.Bool("booltrue", false))
	assert.False(t, s.Bool("boolstr", true))
	assert.True(t, s.Bool("missing", true))
}

func TestGetAllReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t)
	all := m.GetAll()
	all["model"] = "mutated"
	assert.Equal(t, "gpt-3.5-turbo", m.GetAll().String("model", ""))
}
