package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/settings"
)

func TestValidateSettings(t *testing.T) {
	modelsDir := t.TempDir()
	modelFile := filepath.Join(modelsDir, "tiny.gguf")
	require.NoError(t, os.WriteFile(modelFile, []byte("weights"), 0o644))

	tests := []struct {
		name    string
		cfg     settings.Settings
		wantErr string
	}{
		{
			name:    "localhost needs base URL",
			cfg:     settings.Settings{"api_provider": "localhost", "model": "m"},
			wantErr: "API base URL is not set",
		},
		{
			name:    "openai needs key",
			cfg:     settings.Settings{"api_provider": "openai", "api_base_url": "https://api.openai.com/v1", "model": "gpt-4"},
			wantErr: "OpenAI provider requires API key",
		},
		{
			name:    "remote needs model",
			cfg:     settings.Settings{"api_provider": "localhost", "api_base_url": "http://localhost:1234/v1"},
			wantErr: "model is not set",
		},
		{
			name: "remote ok",
			cfg:  settings.Settings{"api_provider": "localhost", "api_base_url": "http://localhost:1234/v1", "model": "m"},
		},
		{
			name:    "localmodel needs selection",
			cfg:     settings.Settings{"api_provider": "localmodel"},
			wantErr: "select a local model",
		},
		{
			name:    "localmodel missing file",
			cfg:     settings.Settings{"api_provider": "localmodel", "model": "gone.gguf"},
			wantErr: "was not found",
		},
		{
			name: "localmodel ok",
			cfg:  settings.Settings{"api_provider": "localmodel", "model": "tiny.gguf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSettings(tt.cfg, modelsDir)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestResolveLocalModelPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/models", "a.gguf"), ResolveLocalModelPath("a.gguf", "/models"))
	assert.Equal(t, "/abs/b.gguf", ResolveLocalModelPath("/abs/b.gguf", "/models"))
	assert.Equal(t, "", ResolveLocalModelPath("  ", "/models"))
}

func TestBuildPayloadLocalhostExtensions(t *testing.T) {
	cfg := settings.Settings{
		"api_provider":          "localhost",
		"model":                 "m",
		"temperature":           0.4,
		"max_response_length":   float64(256),
		"top_k":                 float64(50),
		"enable_repeat_penalty": true,
		"repeat_penalty":        1.1,
		"enable_top_p_min":      true,
		"top_p_min":             0.1,
		"enable_top_p_max":      true,
		"top_p_max":             0.9,
	}
	payload := BuildPayload(cfg, []chats.Message{{Role: "user", Content: "hi"}}, testPersona())

	assert.Equal(t, "m", payload.Model)
	assert.Equal(t, 0.4, payload.Temperature)
	assert.Equal(t, 256, payload.MaxTokens)
	require.NotNil(t, payload.TopP)
	assert.Equal(t, 0.9, *payload.TopP)
	require.NotNil(t, payload.TopK)
	assert.Equal(t, 50, *payload.TopK)
	require.NotNil(t, payload.RepeatPenalty)
	assert.Equal(t, 1.1, *payload.RepeatPenalty)
	require.NotNil(t, payload.MinP)
	assert.Equal(t, 0.1, *payload.MinP)
}

func TestBuildPayloadRemoteOmitsExtensions(t *testing.T) {
	cfg := settings.Settings{
		"api_provider":     "openai",
		"model":            "gpt-4",
		"enable_top_p_max": false,
	}
	payload := BuildPayload(cfg, nil, testPersona())

	assert.Nil(t, payload.TopP)
	assert.Nil(t, payload.TopK)
	assert.Nil(t, payload.RepeatPenalty)
	assert.Nil(t, payload.MinP)
	assert.Equal(t, 0.7, payload.Temperature, "default temperature")
	assert.Equal(t, 300, payload.MaxTokens, "default response length")
}

func TestNormalizeStopStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, normalizeStopStrings([]any{" a ", "b", "  "}))
	assert.Equal(t, []string{"a", "b"}, normalizeStopStrings([]string{"a", "", "b"}))
	assert.Equal(t, []string{"one", "two"}, normalizeStopStrings("one\n two \n"))
	assert.Nil(t, normalizeStopStrings(nil))
	assert.Nil(t, normalizeStopStrings(42))
}

func TestSanitizeStopStrings(t *testing.T) {
	stop := []string{"###", "User", "ACE", "end"}
	assert.Equal(t, []string{"###", "end"}, sanitizeStopStrings(stop, "ace"))

	// Persona name only filters when set.
	assert.Equal(t, []string{"###", "ACE", "end"}, sanitizeStopStrings(stop, ""))
}

func TestBuildPayloadFiltersStopStrings(t *testing.T) {
	cfg := settings.Settings{
		"api_provider": "openai",
		"stop_strings": []any{"user", "Ace", "###"},
	}
	payload := BuildPayload(cfg, nil, PersonaContext{Name: "Ace"})
	assert.Equal(t, []string{"###"}, payload.Stop)
}
