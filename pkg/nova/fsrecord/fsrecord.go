// Package fsrecord maps entity identities to filesystem paths and owns the
// sanitization of user-supplied names into safe path segments. Everything
// Nova persists lives under a single data root:
//
//	Bots/<name>/...        bot definitions, IAM sets, chat subtrees
//	Personas/<id>/...      user personas
//	Chats/list.txt         optional legacy chat index
//	Settings/settings.txt  flat settings map
//	Models/ChatModels/     local model files
//	Debug_logs/            debug session transcripts
package fsrecord

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// unsafeSegment matches every rune that is not allowed in a path segment.
var unsafeSegment = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// Sanitize converts a user-supplied name into a safe path segment.
// Every disallowed rune becomes an underscore.
func Sanitize(name string) string {
	return unsafeSegment.ReplaceAllString(name, "_")
}

// SanitizeTitle converts a chat title into the folder-name fragment used by
// chat ids: spaces and slashes become underscores, capped at 50 runes.
func SanitizeTitle(title string) string {
	s := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(title)
	runes := []rune(s)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return string(runes)
}

// Root resolves entity identities to absolute paths under the data root.
type Root struct {
	base string
}

// NewRoot creates a Root anchored at the given data directory.
func NewRoot(base string) *Root {
	return &Root{base: base}
}

// Base returns the data root directory.
func (r *Root) Base() string { return r.base }

// BotsDir returns the folder holding all bot subtrees.
func (r *Root) BotsDir() string { return filepath.Join(r.base, "Bots") }

// BotDir returns the folder for one bot.
func (r *Root) BotDir(name string) string { return filepath.Join(r.BotsDir(), name) }

// PersonasDir returns the folder holding all personas.
func (r *Root) PersonasDir() string { return filepath.Join(r.base, "Personas") }

// PersonaDir returns the folder for one persona.
func (r *Root) PersonaDir(id string) string { return filepath.Join(r.PersonasDir(), id) }

// ChatsDir returns the chat metadata folder.
func (r *Root) ChatsDir() string { return filepath.Join(r.base, "Chats") }

// ChatIndexFile returns the legacy flat chat index file.
func (r *Root) ChatIndexFile() string { return filepath.Join(r.ChatsDir(), "list.txt") }

// SettingsFile returns the settings file path.
func (r *Root) SettingsFile() string { return filepath.Join(r.base, "Settings", "settings.txt") }

// ModelsDir returns the local chat model folder.
func (r *Root) ModelsDir() string { return filepath.Join(r.base, "Models", "ChatModels") }

// DebugLogsDir returns the debug session log folder.
func (r *Root) DebugLogsDir() string { return filepath.Join(r.base, "Debug_logs") }

// WriteFileAtomic writes data to path by writing a temp file in the same
// directory and renaming it over the target. The parent directory must
// already exist.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SwapDirAtomic rebuilds the directory at target from scratch. The build
// function populates a sibling temp directory; only when it succeeds is the
// old directory swapped out. On any error the previous contents stay intact.
func SwapDirAtomic(target string, build func(dir string) error) error {
	parent := filepath.Dir(target)
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(target)+".swap-*")
	if err != nil {
		return fmt.Errorf("creating swap dir: %w", err)
	}
	if err := build(tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	old := tmp + ".old"
	replaced := false
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, old); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("moving old %s aside: %w", filepath.Base(target), err)
		}
		replaced = true
	}
	if err := os.Rename(tmp, target); err != nil {
		if replaced {
			// Best effort restore of the previous directory.
			_ = os.Rename(old, target)
		}
		os.RemoveAll(tmp)
		return fmt.Errorf("swapping in new %s: %w", filepath.Base(target), err)
	}
	if replaced {
		os.RemoveAll(old)
	}
	return nil
}
