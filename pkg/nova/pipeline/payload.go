package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/settings"
)

// Payload is the completion request body. Optional fields are pointers so
// they serialize only when the settings enable them; OpenAI-compatible
// servers ignore fields they do not support, but omitting them keeps the
// request minimal for strict ones.
type Payload struct {
	Model       string          `json:"model"`
	Messages    []chats.Message `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stop        []string        `json:"stop,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`

	// Localhost/LM Studio extensions.
	TopK          *int     `json:"top_k,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	MinP          *float64 `json:"min_p,omitempty"`
}

// ValidateSettings checks that the selected provider has what it needs
// before any composition work happens.
func ValidateSettings(cfg settings.Settings, modelsDir string) error {
	provider := strings.ToLower(cfg.String("api_provider", "localhost"))
	model := cfg.String("model", "")

	if provider == "localmodel" {
		if model == "" {
			return fmt.Errorf("select a local model in Settings > API Client")
		}
		path := ResolveLocalModelPath(model, modelsDir)
		if fi, err := os.Stat(path); err != nil || fi.IsDir() {
			return fmt.Errorf("selected local model file was not found in Models/ChatModels")
		}
		return nil
	}

	if cfg.String("api_base_url", "") == "" {
		return fmt.Errorf("API base URL is not set")
	}
	if provider == "openai" && cfg.String("api_key", "") == "" {
		return fmt.Errorf("OpenAI provider requires API key")
	}
	if model == "" {
		return fmt.Errorf("model is not set in Settings > API Client")
	}
	return nil
}

// ResolveLocalModelPath turns a model setting into a file path. Absolute
// paths pass through; anything else resolves under the models folder.
func ResolveLocalModelPath(model, modelsDir string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return ""
	}
	if filepath.IsAbs(model) {
		return model
	}
	return filepath.Join(modelsDir, model)
}

// BuildPayload assembles the request body from the settings. Sampling
// extensions only apply to the localhost provider; remote endpoints get the
// plain OpenAI surface.
func BuildPayload(cfg settings.Settings, messages []chats.Message, persona PersonaContext) *Payload {
	payload := &Payload{
		Model:       cfg.String("model", ""),
		Messages:    messages,
		Temperature: cfg.Float("temperature", 0.7),
		MaxTokens:   cfg.Int("max_response_length", 300),
	}

	stop := sanitizeStopStrings(normalizeStopStrings(cfg["stop_strings"]), persona.Name)
	if len(stop) > 0 {
		payload.Stop = stop
	}

	if cfg.Bool("enable_top_p_max", true) {
		topP := cfg.Float("top_p_max", 0.95)
		payload.TopP = &topP
	}

	if strings.ToLower(cfg.String("api_provider", "localhost")) == "localhost" {
		topK := cfg.Int("top_k", 40)
		payload.TopK = &topK

		if cfg.Bool("enable_repeat_penalty", true) {
			rp := cfg.Float("repeat_penalty", 1.0)
			payload.RepeatPenalty = &rp
		}
		if cfg.Bool("enable_top_p_min", true) {
			minP := cfg.Float("top_p_min", 0.05)
			payload.MinP = &minP
		}
	}
	return payload
}

// normalizeStopStrings accepts the two shapes the settings file stores:
// a list of strings, or one newline-separated string.
func normalizeStopStrings(value any) []string {
	var out []string
	switch t := value.(type) {
	case []any:
		for _, item := range t {
			if s := strings.TrimSpace(fmt.Sprintf("%v", item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range t {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(t, "\n") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// sanitizeStopStrings drops tokens that would truncate replies the moment
// the model addresses the user: the literal "user" and the persona's name.
func sanitizeStopStrings(stop []string, personaName string) []string {
	persona := strings.ToLower(strings.TrimSpace(personaName))
	var out []string
	for _, token := range stop {
		lowered := strings.ToLower(token)
		if lowered == "user" {
			continue
		}
		if persona != "" && lowered == persona {
			continue
		}
		out = append(out, token)
	}
	return out
}
