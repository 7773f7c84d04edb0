package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/project-nova/nova/pkg/nova/settings"
)

// modelFileExtensions are the local model formats the picker offers.
var modelFileExtensions = map[string]bool{
	".gguf":        true,
	".bin":         true,
	".safetensors": true,
	".pt":          true,
	".pth":         true,
}

// handleSettings serves the settings map: GET (or empty POST) reads, POST
// with an update action merges.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}

	if r.Method == http.MethodGet || len(body) == 0 {
		s.writeJSON(w, s.settings.GetAll())
		return
	}

	action := bodyString(body, "action")
	if action == "" {
		action = "update"
	}
	if action != "update" {
		s.writeJSON(w, map[string]any{"success": false})
		return
	}
	values, _ := body["settings"].(map[string]any)
	if err := s.settings.UpdateMultiple(values); err != nil {
		s.writeJSON(w, map[string]any{"success": false})
		return
	}
	s.writeJSON(w, map[string]any{"success": true})
}

// handleSettingsReset restores the defaults and returns them.
func (s *Server) handleSettingsReset(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.ResetToDefaults(); err != nil {
		s.writeJSON(w, map[string]any{})
		return
	}
	s.writeJSON(w, s.settings.GetAll())
}

// handleSettingsTest probes the configured provider without sending a real
// completion: remote providers get a GET /models call, the local provider a
// file check.
func (s *Server) handleSettingsTest(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}

	cfg := s.settings.GetAll()
	if overlay, ok := body["settings"].(map[string]any); ok {
		for k, v := range overlay {
			cfg[k] = v
		}
	}
	s.writeJSON(w, s.testProviderSettings(r, cfg))
}

func (s *Server) testProviderSettings(r *http.Request, cfg settings.Settings) map[string]any {
	provider := strings.ToLower(cfg.String("api_provider", "openai"))
	apiKey := cfg.String("api_key", "")
	baseURL := cfg.String("api_base_url", "")
	model := cfg.String("model", "")

	if provider == "localmodel" {
		modelsDir := s.root.ModelsDir()
		if fi, err := os.Stat(modelsDir); err != nil || !fi.IsDir() {
			return fail(fmt.Sprintf("Local model folder not found: %s", modelsDir))
		}
		if model == "" {
			return fail("Select a local model file first.")
		}
		path := model
		if !filepath.IsAbs(path) {
			path = filepath.Join(modelsDir, model)
		}
		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() {
			return fail(fmt.Sprintf("Model file not found: %s", path))
		}
		return map[string]any{"success": true, "message": fmt.Sprintf("Local model is available: %s", filepath.Base(path))}
	}

	if baseURL == "" {
		switch provider {
		case "localhost":
			baseURL = "http://localhost:1234/v1"
		case "openai":
			baseURL = "https://api.openai.com/v1"
		}
	}
	if provider == "openai" && apiKey == "" {
		return fail("OpenAI requires an API key.")
	}

	modelsURL := strings.TrimRight(baseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, modelsURL, nil)
	if err != nil {
		return fail(fmt.Sprintf("Test failed: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fail(fmt.Sprintf("Connection failed: %v.", err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(fmt.Sprintf("API error: HTTP %d.", resp.StatusCode))
	}

	var decoded struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	var names []string
	if err := json.Unmarshal(respBody, &decoded); err == nil {
		for _, item := range decoded.Data {
			if item.ID != "" {
				names = append(names, item.ID)
			}
		}
	}

	message := "Connected. Models list is empty or unavailable."
	if len(names) > 0 {
		preview := names
		if len(preview) > 3 {
			preview = preview[:3]
		}
		message = fmt.Sprintf("Connected. Found %d model(s): %s", len(names), strings.Join(preview, ", "))
	}
	return map[string]any{"success": true, "message": message, "models": names}
}

// handleLocalModels lists model files under Models/ChatModels recursively.
func (s *Server) handleLocalModels(w http.ResponseWriter, r *http.Request) {
	modelsDir := s.root.ModelsDir()
	if fi, err := os.Stat(modelsDir); err != nil || !fi.IsDir() {
		s.writeJSON(w, map[string]any{
			"success": false,
			"models":  []string{},
			"message": fmt.Sprintf("Folder not found: %s", modelsDir),
		})
		return
	}

	var models []string
	_ = filepath.WalkDir(modelsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !modelFileExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(modelsDir, path)
		if err != nil {
			return nil
		}
		models = append(models, filepath.ToSlash(rel))
		return nil
	})
	sortCaseInsensitive(models)

	s.writeJSON(w, map[string]any{
		"success": true,
		"models":  models,
		"message": fmt.Sprintf("Found %d local model file(s).", len(models)),
	})
}

// handleUsage reports per-model token totals.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeJSON(w, map[string]any{"totals": []any{}})
		return
	}
	totals, err := s.usage.Totals()
	if err != nil {
		s.writeJSON(w, fail(err.Error()))
		return
	}
	s.writeJSON(w, map[string]any{"totals": totals})
}
