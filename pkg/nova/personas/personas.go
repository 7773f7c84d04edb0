// Package personas manages user personas under Personas/<id>/. Each persona
// folder holds persona.json (legacy installs used a *.txt file containing
// the same JSON), Images/, and Coverart/. Exactly one system persona, "User",
// exists; it can be updated but never deleted.
package personas

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/project-nova/nova/pkg/nova/artwork"
	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// SystemPersonaID is the identity of the protected default persona.
const SystemPersonaID = "User"

// Persona is a loaded user persona.
type Persona struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CoverArt    string      `json:"cover_art"`
	IconArt     string      `json:"icon_art"`
	CoverArtFit bots.ArtFit `json:"cover_art_fit"`
	IconFit     bots.ArtFit `json:"icon_fit"`
	Created     string      `json:"created"`
	IsSystem    bool        `json:"is_system"`
}

// Update carries a partial persona update. Nil fields are left untouched.
type Update struct {
	Name        *string
	Description *string
	CoverArt    *string
	IconArt     *string
	CoverArtFit *bots.ArtFit
	IconFit     *bots.ArtFit
}

// Store provides CRUD over personas.
type Store struct {
	root   *fsrecord.Root
	logger *slog.Logger
}

// NewStore creates a persona store rooted at the given data root.
func NewStore(root *fsrecord.Root, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger.With("component", "personas")}
}

func (s *Store) personaDir(id string) string { return s.root.PersonaDir(id) }

// personaDirs lists persona folders in name order, skipping hidden entries.
func (s *Store) personaDirs() []string {
	entries, err := os.ReadDir(s.root.PersonasDir())
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// rawPersona is the on-disk persona.json shape.
type rawPersona struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CoverArt    string          `json:"cover_art"`
	IconArt     string          `json:"icon_art"`
	CoverArtFit json.RawMessage `json:"cover_art_fit"`
	IconFit     json.RawMessage `json:"icon_fit"`
	Created     string          `json:"created"`
	IsSystem    bool            `json:"is_system"`
}

// decodePersonaJSON accepts either a single object or a one-element array,
// which some legacy files used.
func decodePersonaJSON(data []byte) (rawPersona, bool) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return rawPersona{}, false
	}
	var obj rawPersona
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, true
	}
	var list []rawPersona
	if err := json.Unmarshal([]byte(trimmed), &list); err == nil && len(list) > 0 {
		return list[0], true
	}
	return rawPersona{}, false
}

func decodeFit(raw json.RawMessage) bots.ArtFit {
	fit := bots.DefaultArtFit()
	if len(raw) == 0 {
		return fit
	}
	var m map[string]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		return fit
	}
	if v, ok := m["size"]; ok {
		fit.Size = v
	}
	if v, ok := m["x"]; ok {
		fit.X = v
	}
	if v, ok := m["y"]; ok {
		fit.Y = v
	}
	return fit
}

// loadFromDir reads a persona from its folder. The folder name is the
// identity regardless of what the JSON claims.
func (s *Store) loadFromDir(id string) *Persona {
	dir := s.personaDir(id)

	var raw rawPersona
	loaded := false
	if data, err := os.ReadFile(filepath.Join(dir, "persona.json")); err == nil {
		raw, loaded = decodePersonaJSON(data)
	} else {
		// Legacy layout: a *.txt file holding the persona JSON, preferring the
		// file named after the folder.
		candidates, _ := filepath.Glob(filepath.Join(dir, "*.txt"))
		sort.Strings(candidates)
		preferred := ""
		for _, c := range candidates {
			stem := strings.TrimSuffix(filepath.Base(c), ".txt")
			if strings.EqualFold(stem, id) {
				preferred = c
				break
			}
		}
		if preferred == "" && len(candidates) > 0 {
			preferred = candidates[0]
		}
		if preferred != "" {
			if data, err := os.ReadFile(preferred); err == nil {
				raw, loaded = decodePersonaJSON(data)
			}
		}
	}
	if !loaded {
		s.logger.Debug("persona metadata missing, using folder defaults", "persona", id)
	}

	name := raw.Name
	if name == "" {
		name = id
	}
	coverURL := "/Personas/" + id + "/Coverart"
	cover := raw.CoverArt
	if cover == "" {
		cover = artwork.FirstURL(filepath.Join(dir, "Coverart"), coverURL)
	}
	icon := raw.IconArt
	if icon == "" {
		icon = cover
	}
	created := raw.Created
	if created == "" {
		created = time.Now().Format(time.RFC3339)
	}

	return &Persona{
		ID:          id,
		Name:        name,
		Description: raw.Description,
		CoverArt:    cover,
		IconArt:     icon,
		CoverArtFit: decodeFit(raw.CoverArtFit),
		IconFit:     decodeFit(raw.IconFit),
		Created:     created,
		IsSystem:    raw.IsSystem,
	}
}

// save persists a persona as persona.json.
func (s *Store) save(p *Persona) error {
	dir := s.personaDir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating persona folder: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling persona: %w", err)
	}
	return fsrecord.WriteFileAtomic(filepath.Join(dir, "persona.json"), data)
}

// GetAll returns every persona.
func (s *Store) GetAll() []*Persona {
	var out []*Persona
	for _, id := range s.personaDirs() {
		out = append(out, s.loadFromDir(id))
	}
	return out
}

// Get returns one persona by id (folder name).
func (s *Store) Get(id string) (*Persona, error) {
	for _, dir := range s.personaDirs() {
		if dir == id {
			return s.loadFromDir(dir), nil
		}
	}
	return nil, fmt.Errorf("persona %q: %w", id, fsrecord.ErrNotFound)
}

// Create provisions a new persona with a sanitized folder identity.
func (s *Store) Create(name, description, coverArt string) (*Persona, error) {
	safe := fsrecord.Sanitize(name)
	if safe == "" {
		safe = "Persona"
	}
	dir := s.personaDir(safe)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("persona %q: %w", safe, fsrecord.ErrConflict)
	}

	displayName := name
	if displayName == "" {
		displayName = safe
	}
	p := &Persona{
		ID:          safe,
		Name:        displayName,
		Description: description,
		CoverArt:    coverArt,
		IconArt:     coverArt,
		CoverArtFit: bots.DefaultArtFit(),
		IconFit:     bots.DefaultArtFit(),
		Created:     time.Now().Format(time.RFC3339),
	}

	for _, sub := range []string{filepath.Join(dir, "Images"), filepath.Join(dir, "Coverart")} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("provisioning persona %q: %w", safe, err)
		}
	}
	if err := s.save(p); err != nil {
		return nil, err
	}
	s.logger.Info("persona created", "persona", safe)
	return p, nil
}

// ApplyUpdate merges the provided fields and persists the persona. The
// system persona accepts updates; only deletion is protected.
func (s *Store) ApplyUpdate(id string, upd Update) (*Persona, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.CoverArt != nil {
		p.CoverArt = *upd.CoverArt
	}
	if upd.IconArt != nil {
		p.IconArt = *upd.IconArt
	}
	if upd.CoverArtFit != nil {
		p.CoverArtFit = *upd.CoverArtFit
	}
	if upd.IconFit != nil {
		p.IconFit = *upd.IconFit
	}

	if err := s.save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a persona. System personas (and the "User" id regardless of
// its flag) are refused; any other found persona is removed unconditionally.
func (s *Store) Delete(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if p.IsSystem || p.ID == SystemPersonaID {
		return fmt.Errorf("persona %q is protected: %w", id, fsrecord.ErrRefused)
	}
	if err := os.RemoveAll(s.personaDir(id)); err != nil {
		return fmt.Errorf("deleting persona %q: %w", id, err)
	}
	s.logger.Info("persona deleted", "persona", id)
	return nil
}

// EnsureSystemPersona creates the protected "User" persona when missing.
// Called once at startup.
func (s *Store) EnsureSystemPersona() error {
	if _, err := s.Get(SystemPersonaID); err == nil {
		return nil
	}
	p := &Persona{
		ID:          SystemPersonaID,
		Name:        SystemPersonaID,
		CoverArtFit: bots.DefaultArtFit(),
		IconFit:     bots.DefaultArtFit(),
		Created:     time.Now().Format(time.RFC3339),
		IsSystem:    true,
	}
	dir := s.personaDir(SystemPersonaID)
	for _, sub := range []string{filepath.Join(dir, "Images"), filepath.Join(dir, "Coverart")} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("provisioning system persona: %w", err)
		}
	}
	return s.save(p)
}
