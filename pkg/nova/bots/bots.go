// Package bots manages bot definitions under Bots/<name>/. A bot folder
// holds core.txt (required for the bot to be discoverable), scenario.txt,
// config.json with presentation metadata and the prompt section order,
// IAM sets under IAMs/<set>/, and Images/ and Coverart/ folders. Chat
// subtrees inside the bot folder are owned by the chats package.
package bots

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// Prompt section keys in canonical default order. Every normalized prompt
// order is a permutation of exactly this set.
var CanonicalPromptOrder = []string{"conduct", "scenario", "core", "user_persona", "iam"}

// ArtFit describes how cover or icon art is scaled and positioned.
type ArtFit struct {
	Size float64 `json:"size"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// DefaultArtFit is the neutral scale/offset triple.
func DefaultArtFit() ArtFit { return ArtFit{Size: 100, X: 50, Y: 50} }

// NormalizeFit coerces a loosely typed fit value into an ArtFit.
func NormalizeFit(v any) ArtFit {
	fit := DefaultArtFit()
	m, ok := v.(map[string]any)
	if !ok {
		return fit
	}
	if f, ok := m["size"].(float64); ok {
		fit.Size = f
	}
	if f, ok := m["x"].(float64); ok {
		fit.X = f
	}
	if f, ok := m["y"].(float64); ok {
		fit.Y = f
	}
	return fit
}

// Summary is the listing view of a bot.
type Summary struct {
	Name             string `json:"name"`
	Path             string `json:"path"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
	CoverArt         string `json:"cover_art"`
}

// Bot is a fully loaded bot definition.
type Bot struct {
	Name             string   `json:"name"`
	Path             string   `json:"path"`
	Core             string   `json:"core_data"`
	Scenario         string   `json:"scenario_data"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"short_description"`
	CoverArt         string   `json:"cover_art"`
	IconArt          string   `json:"icon_art"`
	CoverArtFit      ArtFit   `json:"cover_art_fit"`
	IconFit          ArtFit   `json:"icon_fit"`
	PromptOrder      []string `json:"prompt_order"`
	ActiveIAMSet     string   `json:"active_iam_set"`
}

// Update carries a partial bot update. Nil fields are left untouched.
type Update struct {
	Description      *string
	ShortDescription *string
	CoverArt         *string
	IconArt          *string
	CoverArtFit      *ArtFit
	IconFit          *ArtFit
	Core             *string
	Scenario         *string
	PromptOrder      []string
	ActiveIAMSet     *string
}

// Store provides CRUD over bot definitions.
type Store struct {
	root   *fsrecord.Root
	logger *slog.Logger
}

// NewStore creates a bot store rooted at the given data root.
func NewStore(root *fsrecord.Root, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger.With("component", "bots")}
}

func (s *Store) botDir(name string) string   { return s.root.BotDir(name) }
func (s *Store) coreFile(name string) string { return filepath.Join(s.botDir(name), "core.txt") }
func (s *Store) scenarioFile(name string) string {
	return filepath.Join(s.botDir(name), "scenario.txt")
}
func (s *Store) configFile(name string) string {
	return filepath.Join(s.botDir(name), "config.json")
}

// readConfig loads config.json as a loose map. Missing or unreadable files
// yield an empty map; the caller works from there.
func (s *Store) readConfig(name string) map[string]any {
	data, err := os.ReadFile(s.configFile(name))
	if err != nil {
		return map[string]any{}
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.Warn("bot config unreadable", "bot", name, "error", err)
		return map[string]any{}
	}
	return cfg
}

func (s *Store) writeConfig(name string, cfg map[string]any) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bot config: %w", err)
	}
	return fsrecord.WriteFileAtomic(s.configFile(name), data)
}

// configString fetches a string config field.
func configString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// Discover lists every usable bot. A bot is usable when its folder contains
// core.txt; hidden folders are skipped.
func (s *Store) Discover() []Summary {
	entries, err := os.ReadDir(s.root.BotsDir())
	if err != nil {
		s.logger.Debug("bots folder not found", "path", s.root.BotsDir())
		return nil
	}

	var out []Summary
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if _, err := os.Stat(s.coreFile(name)); err != nil {
			continue
		}
		cfg := s.readConfig(name)
		desc := configString(cfg, "description")
		short := configString(cfg, "short_description")
		if short == "" {
			short = truncateRunes(desc, 100)
		}
		out = append(out, Summary{
			Name:             name,
			Path:             s.botDir(name),
			Description:      desc,
			ShortDescription: short,
			CoverArt:         configString(cfg, "cover_art"),
		})
	}
	return out
}

// Load reads a full bot definition. The prompt order is normalized on every
// load, so callers always see a permutation of the canonical key set.
func (s *Store) Load(name string) (*Bot, error) {
	dir := s.botDir(name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("bot %q: %w", name, fsrecord.ErrNotFound)
	}

	core, err := os.ReadFile(s.coreFile(name))
	if err != nil {
		return nil, fmt.Errorf("bot %q missing core.txt: %w", name, fsrecord.ErrNotFound)
	}
	scenario, _ := os.ReadFile(s.scenarioFile(name))

	cfg := s.readConfig(name)
	desc := configString(cfg, "description")
	short := configString(cfg, "short_description")
	if short == "" {
		short = truncateRunes(desc, 100)
	}

	var order []string
	if raw, ok := cfg["prompt_order"].([]any); ok {
		for _, item := range raw {
			if str, ok := item.(string); ok {
				order = append(order, str)
			}
		}
	}

	active := configString(cfg, "active_iam_set")
	if active == "" {
		active = DefaultSetName
	}

	return &Bot{
		Name:             name,
		Path:             dir,
		Core:             string(core),
		Scenario:         string(scenario),
		Description:      desc,
		ShortDescription: short,
		CoverArt:         configString(cfg, "cover_art"),
		IconArt:          configString(cfg, "icon_art"),
		CoverArtFit:      NormalizeFit(cfg["cover_art_fit"]),
		IconFit:          NormalizeFit(cfg["icon_fit"]),
		PromptOrder:      NormalizePromptOrder(order),
		ActiveIAMSet:     active,
	}, nil
}

// Create provisions a new bot subtree. The core file is written last so a
// half-provisioned bot is never discoverable.
func (s *Store) Create(name, core string) (*Bot, error) {
	name = fsrecord.Sanitize(name)
	if name == "" {
		return nil, fmt.Errorf("bot name: %w", fsrecord.ErrNotFound)
	}
	dir := s.botDir(name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("bot %q: %w", name, fsrecord.ErrConflict)
	}

	for _, sub := range []string{
		dir,
		filepath.Join(dir, "IAMs", DefaultSetName),
		filepath.Join(dir, "Images"),
		filepath.Join(dir, "Coverart"),
	} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("provisioning bot %q: %w", name, err)
		}
	}
	if err := os.WriteFile(s.scenarioFile(name), nil, 0o644); err != nil {
		return nil, fmt.Errorf("provisioning bot %q: %w", name, err)
	}
	if err := os.WriteFile(s.coreFile(name), []byte(core), 0o644); err != nil {
		return nil, fmt.Errorf("provisioning bot %q: %w", name, err)
	}

	s.logger.Info("bot created", "bot", name)
	return s.Load(name)
}

// ApplyUpdate merges the provided fields into config.json and overwrites the
// core/scenario files when given. Untouched config keys are preserved.
func (s *Store) ApplyUpdate(name string, upd Update) (*Bot, error) {
	if _, err := os.Stat(s.botDir(name)); err != nil {
		return nil, fmt.Errorf("bot %q: %w", name, fsrecord.ErrNotFound)
	}

	cfg := s.readConfig(name)
	if upd.Description != nil {
		cfg["description"] = *upd.Description
	}
	if upd.ShortDescription != nil {
		cfg["short_description"] = *upd.ShortDescription
	}
	if upd.CoverArt != nil {
		cfg["cover_art"] = *upd.CoverArt
	}
	if upd.IconArt != nil {
		cfg["icon_art"] = *upd.IconArt
	}
	if upd.CoverArtFit != nil {
		cfg["cover_art_fit"] = map[string]any{"size": upd.CoverArtFit.Size, "x": upd.CoverArtFit.X, "y": upd.CoverArtFit.Y}
	}
	if upd.IconFit != nil {
		cfg["icon_fit"] = map[string]any{"size": upd.IconFit.Size, "x": upd.IconFit.X, "y": upd.IconFit.Y}
	}
	if upd.PromptOrder != nil {
		normalized := NormalizePromptOrder(upd.PromptOrder)
		anyOrder := make([]any, len(normalized))
		for i, k := range normalized {
			anyOrder[i] = k
		}
		cfg["prompt_order"] = anyOrder
	}
	if upd.ActiveIAMSet != nil {
		cfg["active_iam_set"] = *upd.ActiveIAMSet
	}
	if err := s.writeConfig(name, cfg); err != nil {
		return nil, err
	}

	if upd.Core != nil {
		if err := fsrecord.WriteFileAtomic(s.coreFile(name), []byte(*upd.Core)); err != nil {
			return nil, fmt.Errorf("writing core for %q: %w", name, err)
		}
	}
	if upd.Scenario != nil {
		if err := fsrecord.WriteFileAtomic(s.scenarioFile(name), []byte(*upd.Scenario)); err != nil {
			return nil, fmt.Errorf("writing scenario for %q: %w", name, err)
		}
	}

	return s.Load(name)
}

// Rename moves the bot folder. Rejected when the source is missing or the
// target name is taken. Chat index re-targeting is the chat store's job.
func (s *Store) Rename(name, newName string) error {
	newName = fsrecord.Sanitize(newName)
	if name == "" || newName == "" || name == newName {
		return fmt.Errorf("rename %q -> %q: %w", name, newName, fsrecord.ErrConflict)
	}
	if _, err := os.Stat(s.botDir(name)); err != nil {
		return fmt.Errorf("bot %q: %w", name, fsrecord.ErrNotFound)
	}
	if _, err := os.Stat(s.botDir(newName)); err == nil {
		return fmt.Errorf("bot %q: %w", newName, fsrecord.ErrConflict)
	}
	if err := os.Rename(s.botDir(name), s.botDir(newName)); err != nil {
		return fmt.Errorf("renaming bot %q: %w", name, err)
	}
	s.logger.Info("bot renamed", "from", name, "to", newName)
	return nil
}

// Delete removes the bot's entire subtree, chats included.
func (s *Store) Delete(name string) error {
	dir := s.botDir(name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("bot %q: %w", name, fsrecord.ErrNotFound)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting bot %q: %w", name, err)
	}
	s.logger.Info("bot deleted", "bot", name)
	return nil
}

// NormalizePromptOrder is a total function from any stored order to a
// permutation of the canonical key set: valid keys keep their given order
// (first occurrence wins), then missing canonical keys are appended in
// canonical order.
func NormalizePromptOrder(order []string) []string {
	valid := make(map[string]bool, len(CanonicalPromptOrder))
	for _, k := range CanonicalPromptOrder {
		valid[k] = true
	}

	out := make([]string, 0, len(CanonicalPromptOrder))
	seen := make(map[string]bool)
	for _, k := range order {
		if valid[k] && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	for _, k := range CanonicalPromptOrder {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
