package chats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// loadIndex reads the flat Chats/list.txt index. Missing or malformed files
// read as empty.
func (s *Store) loadIndex() []Info {
	data, err := os.ReadFile(s.root.ChatIndexFile())
	if err != nil {
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	var index []Info
	if err := json.Unmarshal([]byte(trimmed), &index); err != nil {
		s.logger.Warn("chat index malformed, ignoring", "error", err)
		return nil
	}
	return index
}

// saveIndex writes the flat index. Installs without a Chats/ folder never
// have one created for them.
func (s *Store) saveIndex(index []Info) {
	dir := s.root.ChatsDir()
	file := s.root.ChatIndexFile()
	if _, err := os.Stat(dir); err != nil {
		if _, err := os.Stat(file); err != nil {
			return
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Warn("creating chat index folder", "error", err)
		return
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		s.logger.Warn("marshaling chat index", "error", err)
		return
	}
	if err := fsrecord.WriteFileAtomic(file, data); err != nil {
		s.logger.Warn("writing chat index", "error", err)
	}
}

// appendIndex adds a chat entry to the flat index when one exists.
func (s *Store) appendIndex(info *Info) {
	if _, err := os.Stat(s.root.ChatIndexFile()); err != nil {
		return
	}
	index := s.loadIndex()
	index = append(index, *info)
	s.saveIndex(index)
}

// touchIndex refreshes a chat's last-updated stamp and message count in the
// flat index when one exists.
func (s *Store) touchIndex(chatID string, messageCount int) {
	if _, err := os.Stat(s.root.ChatIndexFile()); err != nil {
		return
	}
	index := s.loadIndex()
	for i := range index {
		if index[i].ID == chatID {
			index[i].LastUpdated = time.Now().Format(stampLayout)
			index[i].MessageCount = messageCount
			break
		}
	}
	s.saveIndex(index)
}

// parseChatFolderName splits a chat folder name into title and creation
// stamp. The trailing two underscore-separated numeric parts form the stamp;
// the rest, underscores turned back into spaces, is the title.
func parseChatFolderName(folderName string) (title, stamp string) {
	name := strings.TrimPrefix(folderName, "Chat")

	var parts []string
	for _, p := range strings.Split(name, "_") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 2 && isDigits(parts[len(parts)-2]) && isDigits(parts[len(parts)-1]) {
		stamp = parts[len(parts)-2] + "_" + parts[len(parts)-1]
		title = strings.TrimSpace(strings.Join(parts[:len(parts)-2], " "))
		if title == "" {
			title = name
		}
		return title, stamp
	}
	if name == "" {
		name = folderName
	}
	return name, ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// scanBotChats builds chat summaries for one bot from the folder tree.
func (s *Store) scanBotChats(botName string) []Info {
	botDir := s.root.BotDir(botName)
	entries, err := os.ReadDir(botDir)
	if err != nil {
		return nil
	}

	var chats []Info
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "Chat") {
			continue
		}
		folder := filepath.Join(botDir, e.Name())

		messageCount := 0
		var lastMessage time.Time
		if iamEntries, err := os.ReadDir(filepath.Join(folder, "IAM")); err == nil {
			for _, f := range iamEntries {
				if f.IsDir() || !strings.HasSuffix(f.Name(), ".txt") {
					continue
				}
				messageCount++
				if fi, err := f.Info(); err == nil && fi.ModTime().After(lastMessage) {
					lastMessage = fi.ModTime()
				}
			}
		}

		title, stamp := parseChatFolderName(e.Name())
		if stamp == "" || lastMessage.IsZero() {
			if fi, err := os.Stat(folder); err == nil {
				if stamp == "" {
					stamp = fi.ModTime().Format(stampLayout)
				}
				if lastMessage.IsZero() {
					lastMessage = fi.ModTime()
				}
			}
		}

		chats = append(chats, Info{
			ID:           e.Name(),
			Bot:          botName,
			Title:        title,
			Created:      stamp,
			LastUpdated:  lastMessage.Format(stampLayout),
			MessageCount: messageCount,
			ChatFolder:   folder,
		})
	}
	return chats
}

// scanAllChats builds summaries for every bot, newest first.
func (s *Store) scanAllChats() []Info {
	entries, err := os.ReadDir(s.root.BotsDir())
	if err != nil {
		return nil
	}
	var chats []Info
	for _, e := range entries {
		if e.IsDir() {
			chats = append(chats, s.scanBotChats(e.Name())...)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].LastUpdated > chats[j].LastUpdated })
	return chats
}

// GetAllChats returns every chat, newest first. The folder scan is
// authoritative; the flat index is only a fallback for empty trees.
func (s *Store) GetAllChats() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chats := s.scanAllChats(); len(chats) > 0 {
		return chats
	}
	return s.loadIndex()
}

// GetLastChatForBot returns the most recently updated chat of one bot.
func (s *Store) GetLastChatForBot(botName string) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChatForBotLocked(botName)
}

func (s *Store) lastChatForBotLocked(botName string) (*Info, error) {
	chats := s.scanBotChats(botName)
	if len(chats) == 0 {
		for _, info := range s.loadIndex() {
			if info.Bot == botName {
				chats = append(chats, info)
			}
		}
	}
	if len(chats) == 0 {
		return nil, fmt.Errorf("no chats for bot %q: %w", botName, fsrecord.ErrNotFound)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].LastUpdated > chats[j].LastUpdated })
	return &chats[0], nil
}

// GetLastChatAnyBot returns the most recently updated chat across all bots.
func (s *Store) GetLastChatAnyBot() (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := s.scanAllChats()
	if len(chats) == 0 {
		chats = s.loadIndex()
		sort.Slice(chats, func(i, j int) bool { return chats[i].LastUpdated > chats[j].LastUpdated })
	}
	if len(chats) == 0 {
		return nil, fmt.Errorf("no chats: %w", fsrecord.ErrNotFound)
	}
	return &chats[0], nil
}

// LoadLastChatForBot loads the most recent chat of a bot and makes it
// current.
func (s *Store) LoadLastChatForBot(botName string) (*Info, []Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.lastChatForBotLocked(botName)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.loadLocked(info.ID, botName)
	if err != nil {
		return nil, nil, err
	}
	return info, messages, nil
}

// Delete removes a chat folder and its index entry. Deleting the current
// chat clears the current state.
func (s *Store) Delete(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.chatFolder(chatID, s.currentBot)
	if folder != "" {
		if err := os.RemoveAll(folder); err != nil {
			return fmt.Errorf("deleting chat %q: %w", chatID, err)
		}
	}

	index := s.loadIndex()
	kept := index[:0]
	for _, info := range index {
		if info.ID != chatID {
			kept = append(kept, info)
		}
	}
	s.saveIndex(kept)

	if s.currentChatID == chatID {
		s.currentChatID = ""
		s.currentBot = ""
		s.currentMessages = nil
	}
	s.logger.Info("chat deleted", "chat", chatID)
	return nil
}

// DeleteChatsForBot removes every chat of one bot from the flat index. The
// folders themselves go away with the bot's directory.
func (s *Store) DeleteChatsForBot(botName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.loadIndex()
	kept := index[:0]
	for _, info := range index {
		if info.Bot != botName {
			kept = append(kept, info)
		}
	}
	s.saveIndex(kept)

	if s.currentBot == botName {
		s.currentChatID = ""
		s.currentBot = ""
		s.currentMessages = nil
	}
}

// PruneIndex removes flat-index entries whose chat folders no longer exist
// and reports how many were dropped.
func (s *Store) PruneIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.loadIndex()
	if len(index) == 0 {
		return 0
	}
	kept := index[:0]
	removed := 0
	for _, info := range index {
		folder := info.ChatFolder
		if folder == "" {
			folder = filepath.Join(s.root.BotDir(info.Bot), info.ID)
		}
		if _, err := os.Stat(folder); err != nil {
			removed++
			continue
		}
		kept = append(kept, info)
	}
	if removed > 0 {
		s.saveIndex(kept)
	}
	return removed
}

// RenameBot rewrites bot references in the flat index after a bot rename.
func (s *Store) RenameBot(oldName, newName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oldName == "" || newName == "" || oldName == newName {
		return false
	}

	index := s.loadIndex()
	changed := false
	for i := range index {
		if index[i].Bot != oldName {
			continue
		}
		index[i].Bot = newName
		if index[i].ChatFolder != "" {
			index[i].ChatFolder = filepath.Join(s.root.BotDir(newName), filepath.Base(index[i].ChatFolder))
		}
		changed = true
	}
	if changed {
		s.saveIndex(index)
	}
	if s.currentBot == oldName {
		s.currentBot = newName
	}
	return changed
}
