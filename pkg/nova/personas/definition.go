package personas

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Definition returns the prompt-facing text of a persona. The legacy layout
// stored the definition in a text file (user.txt, then a file named after the
// folder, then one named after the display name); when that file holds JSON
// the description field is preferred, then a synthesized "Name: <name>" line,
// then the raw text. Personas without any definition file fall back to their
// stored description.
func (s *Store) Definition(p *Persona) string {
	dir := s.personaDir(p.ID)
	candidates := []string{
		filepath.Join(dir, "user.txt"),
		filepath.Join(dir, p.ID+".txt"),
		filepath.Join(dir, fsSafeName(p.Name)+".txt"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if text := extractDefinition(data); text != "" {
			return text
		}
	}
	return p.Description
}

func fsSafeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, name)
}

// extractDefinition pulls the prompt text out of a definition file. Plain
// text passes through; JSON files yield their description, falling back to a
// synthesized name line.
func extractDefinition(data []byte) string {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return ""
	}
	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		return text
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		var list []map[string]any
		if err := json.Unmarshal([]byte(text), &list); err != nil || len(list) == 0 {
			return text
		}
		obj = list[0]
	}
	if desc, ok := obj["description"].(string); ok && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}
	if name, ok := obj["name"].(string); ok && strings.TrimSpace(name) != "" {
		return "Name: " + strings.TrimSpace(name)
	}
	return text
}
