package bots

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

const (
	// DefaultSetName is the reserved IAM set every bot starts with. It can
	// never be deleted, and requests for it fall back to the pre-migration
	// flat IAM/ folder when that still holds content.
	DefaultSetName = "Default"

	// autoSetPrefix is the naming convention for auto-created IAM sets.
	autoSetPrefix = "IAM_"

	iamTimestampLayout = "20060102_150405"
)

// Item is one immediately-accessible-memory entry. The ID is the filename,
// which encodes creation order.
type Item struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

func (s *Store) setsDir(bot string) string { return filepath.Join(s.botDir(bot), "IAMs") }

// legacySetDir is the pre-migration single-folder IAM store.
func (s *Store) legacySetDir(bot string) string { return filepath.Join(s.botDir(bot), "IAM") }

// legacyHasContent reports whether the flat IAM/ folder exists and holds at
// least one .txt item.
func (s *Store) legacyHasContent(bot string) bool {
	entries, err := os.ReadDir(s.legacySetDir(bot))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			return true
		}
	}
	return false
}

// ResolveSetDir returns the storage folder for the requested IAM set. An
// empty set name means the bot's active set. The legacy flat IAM/ fallback
// applies only when the default set is requested, has never been created,
// and the legacy folder still has content.
func (s *Store) ResolveSetDir(bot, set string) (string, error) {
	if _, err := os.Stat(s.botDir(bot)); err != nil {
		return "", fmt.Errorf("bot %q: %w", bot, fsrecord.ErrNotFound)
	}
	if set == "" {
		cfg := s.readConfig(bot)
		set = configString(cfg, "active_iam_set")
	}
	if set == "" {
		set = DefaultSetName
	}
	set = fsrecord.Sanitize(set)

	dir := filepath.Join(s.setsDir(bot), set)
	if _, err := os.Stat(dir); err != nil && set == DefaultSetName && s.legacyHasContent(bot) {
		return s.legacySetDir(bot), nil
	}
	return dir, nil
}

// setSortKey splits an auto-numbered set name into its numeric index.
func setSortKey(name string) (int, bool) {
	if !strings.HasPrefix(name, autoSetPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, autoSetPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListSets returns the bot's IAM set names: numeric IAM_<n> sets first in
// index order, then the rest lexically. When no set folder exists but the
// legacy store has content, the default set name is reported.
func (s *Store) ListSets(bot string) []string {
	entries, err := os.ReadDir(s.setsDir(bot))
	var names []string
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	if len(names) == 0 {
		if s.legacyHasContent(bot) {
			return []string{DefaultSetName}
		}
		return nil
	}

	sort.Slice(names, func(i, j int) bool {
		ni, iok := setSortKey(names[i])
		nj, jok := setSortKey(names[j])
		switch {
		case iok && jok:
			return ni < nj
		case iok:
			return true
		case jok:
			return false
		default:
			return names[i] < names[j]
		}
	})
	return names
}

// CreateSet makes a new IAM set. An empty name auto-numbers the set as
// IAM_<n>, where n is one greater than the highest existing numeric suffix
// (numbers are never reused).
func (s *Store) CreateSet(bot, name string) (string, error) {
	if _, err := os.Stat(s.botDir(bot)); err != nil {
		return "", fmt.Errorf("bot %q: %w", bot, fsrecord.ErrNotFound)
	}

	if name == "" {
		max := 0
		for _, existing := range s.ListSets(bot) {
			if n, ok := setSortKey(existing); ok && n > max {
				max = n
			}
		}
		name = fmt.Sprintf("%s%d", autoSetPrefix, max+1)
	} else {
		name = fsrecord.Sanitize(name)
	}

	dir := filepath.Join(s.setsDir(bot), name)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("IAM set %q: %w", name, fsrecord.ErrConflict)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating IAM set %q: %w", name, err)
	}
	s.logger.Info("IAM set created", "bot", bot, "set", name)
	return name, nil
}

// DeleteSet removes an IAM set. The reserved default set is refused.
func (s *Store) DeleteSet(bot, name string) error {
	if name == DefaultSetName {
		return fmt.Errorf("IAM set %q is reserved: %w", name, fsrecord.ErrRefused)
	}
	dir := filepath.Join(s.setsDir(bot), fsrecord.Sanitize(name))
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("IAM set %q: %w", name, fsrecord.ErrNotFound)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting IAM set %q: %w", name, err)
	}
	s.logger.Info("IAM set deleted", "bot", bot, "set", name)
	return nil
}

// ListItems returns the items of a set in creation order (filename order).
func (s *Store) ListItems(bot, set string) ([]Item, error) {
	dir, err := s.ResolveSetDir(bot, set)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	items := make([]Item, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			s.logger.Warn("IAM item unreadable", "bot", bot, "item", name, "error", err)
			continue
		}
		items = append(items, Item{ID: name, Content: string(content)})
	}
	return items, nil
}

// AddItem appends a new item to a set. The filename encodes the creation
// timestamp, with a numeric suffix on collision so listing order stays
// stable within one second.
func (s *Store) AddItem(bot, content, set string) (*Item, error) {
	dir, err := s.ResolveSetDir(bot, set)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating IAM set folder: %w", err)
	}

	stamp := time.Now().Format(iamTimestampLayout)
	name := fmt.Sprintf("iam_%s.txt", stamp)
	for k := 1; ; k++ {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			break
		}
		name = fmt.Sprintf("iam_%s_%d.txt", stamp, k)
	}

	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("writing IAM item: %w", err)
	}
	return &Item{ID: name, Content: content}, nil
}

// UpdateItem overwrites the content of an existing item.
func (s *Store) UpdateItem(bot, id, content, set string) error {
	dir, err := s.ResolveSetDir(bot, set)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.Base(id))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("IAM item %q: %w", id, fsrecord.ErrNotFound)
	}
	return fsrecord.WriteFileAtomic(path, []byte(content))
}

// DeleteItem removes one item from a set.
func (s *Store) DeleteItem(bot, id, set string) error {
	dir, err := s.ResolveSetDir(bot, set)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.Base(id))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("IAM item %q: %w", id, fsrecord.ErrNotFound)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting IAM item %q: %w", id, err)
	}
	return nil
}

// ReplaceItems swaps the full contents of a set in one atomic step. Each
// filename carries a zero-padded index suffix so creation order is the given
// slice order.
func (s *Store) ReplaceItems(bot string, contents []string, set string) error {
	dir, err := s.ResolveSetDir(bot, set)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("creating IAM sets folder: %w", err)
	}

	stamp := time.Now().Format(iamTimestampLayout)
	return fsrecord.SwapDirAtomic(dir, func(tmp string) error {
		for i, content := range contents {
			name := fmt.Sprintf("iam_%s_%03d.txt", stamp, i)
			if err := os.WriteFile(filepath.Join(tmp, name), []byte(content), 0o644); err != nil {
				return fmt.Errorf("writing IAM item %d: %w", i, err)
			}
		}
		return nil
	})
}
