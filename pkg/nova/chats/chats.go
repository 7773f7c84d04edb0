// Package chats persists conversations under Bots/<bot>/Chat<name>_<stamp>/.
// Each chat folder holds an IAM/ transcript (one JSON file per user/assistant
// turn pair), the STM/MTM/LTM memory folders, and a chat.json metadata file.
// Chats/list.txt is an optional flat index kept for installs that have one;
// the folder tree is always the source of truth.
package chats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

const (
	stampLayout = "20060102_150405"
	// isoLayout mirrors the timestamp format older transcripts carry.
	isoLayout = "2006-01-02T15:04:05.000000"
)

// Message is one transcript entry.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Info is the chat summary shown in listings and stored in the flat index.
type Info struct {
	ID           string `json:"id"`
	Bot          string `json:"bot"`
	Title        string `json:"title"`
	Created      string `json:"created"`
	LastUpdated  string `json:"last_updated"`
	MessageCount int    `json:"message_count"`
	ChatFolder   string `json:"chat_folder"`
}

// Store manages chat transcripts. One mutex serializes every operation;
// transcript writes are whole-directory swaps, so concurrent mutation of the
// same chat would otherwise race on the swap.
type Store struct {
	mu     sync.Mutex
	root   *fsrecord.Root
	bots   *bots.Store
	logger *slog.Logger

	currentChatID   string
	currentBot      string
	currentMessages []Message
}

// NewStore creates a chat store. The bot store supplies IAM seed messages
// for new chats.
func NewStore(root *fsrecord.Root, botStore *bots.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, bots: botStore, logger: logger.With("component", "chats")}
}

func nowISO() string { return time.Now().Format(isoLayout) }

// Create starts a new chat for a bot, seeded with the bot's IAM items from
// the given set (empty means the bot's active set) as assistant messages.
func (s *Store) Create(botName, title, iamSet string) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.root.BotDir(botName)); err != nil {
		return nil, fmt.Errorf("bot %q: %w", botName, fsrecord.ErrNotFound)
	}

	stamp := time.Now().Format(stampLayout)
	if title == "" {
		title = "Chat " + stamp
	}
	chatID := "Chat" + fsrecord.SanitizeTitle(title) + "_" + stamp
	folder := filepath.Join(s.root.BotDir(botName), chatID)

	for _, sub := range []string{"IAM", "STM", "MTM", "LTM"} {
		if err := os.MkdirAll(filepath.Join(folder, sub), 0o755); err != nil {
			return nil, fmt.Errorf("provisioning chat %q: %w", chatID, err)
		}
	}

	seed, err := s.bots.ListItems(botName, iamSet)
	if err != nil {
		return nil, err
	}
	resolvedSet := iamSet
	if resolvedSet == "" {
		if b, err := s.bots.Load(botName); err == nil {
			resolvedSet = b.ActiveIAMSet
		}
	}

	meta := chatMeta{Title: title, Created: stamp, IAMSet: resolvedSet}
	if err := s.writeMeta(folder, meta); err != nil {
		return nil, err
	}

	var messages []Message
	for _, item := range seed {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		messages = append(messages, Message{Role: "assistant", Content: item.Content, Timestamp: nowISO()})
	}
	if len(messages) > 0 {
		if err := s.saveTranscript(folder, messages); err != nil {
			return nil, err
		}
	}

	info := &Info{
		ID:           chatID,
		Bot:          botName,
		Title:        title,
		Created:      stamp,
		LastUpdated:  stamp,
		MessageCount: len(messages),
		ChatFolder:   folder,
	}
	s.appendIndex(info)

	s.currentChatID = chatID
	s.currentBot = botName
	s.currentMessages = messages

	s.logger.Info("chat created", "bot", botName, "chat", chatID, "seed_messages", len(messages))
	return info, nil
}

// Load reads a chat's transcript and makes it the current chat.
func (s *Store) Load(chatID, botName string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(chatID, botName)
}

func (s *Store) loadLocked(chatID, botName string) ([]Message, error) {
	folder := s.chatFolder(chatID, botName)
	if folder == "" {
		return nil, fmt.Errorf("chat %q: %w", chatID, fsrecord.ErrNotFound)
	}

	messages := s.readTranscript(folder)
	s.currentChatID = chatID
	s.currentBot = botName
	s.currentMessages = messages

	s.logger.Debug("chat loaded", "chat", chatID, "messages", len(messages))
	return messages, nil
}

// chatFolder locates a chat directory: flat index first, then the direct
// path under the bot, then a full scan.
func (s *Store) chatFolder(chatID, botName string) string {
	for _, info := range s.loadIndex() {
		if info.ID == chatID && info.ChatFolder != "" {
			if _, err := os.Stat(info.ChatFolder); err == nil {
				return info.ChatFolder
			}
		}
	}
	if botName != "" {
		candidate := filepath.Join(s.root.BotDir(botName), chatID)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	for _, info := range s.scanAllChats() {
		if info.ID == chatID {
			return info.ChatFolder
		}
	}
	return ""
}

// readTranscript loads the IAM/ files of one chat in filename order. Each
// file holds either a user/assistant pair or a legacy single message.
func (s *Store) readTranscript(folder string) []Message {
	iamDir := filepath.Join(folder, "IAM")
	entries, err := os.ReadDir(iamDir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var messages []Message
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(iamDir, name))
		if err != nil {
			s.logger.Warn("transcript file unreadable", "file", name, "error", err)
			continue
		}
		decoded, err := decodeTranscriptFile(data)
		if err != nil {
			s.logger.Warn("transcript file malformed", "file", name, "error", err)
			continue
		}
		messages = append(messages, decoded...)
	}
	return messages
}

// decodeTranscriptFile accepts both transcript formats: the paired
// {"user":..,"assistant":..} shape and the legacy single-message shape.
func decodeTranscriptFile(data []byte) ([]Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	if _, hasRole := probe["role"]; hasRole {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	}

	var pair struct {
		User      *Message `json:"user"`
		Assistant *Message `json:"assistant"`
	}
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, err
	}
	var out []Message
	if pair.User != nil {
		pair.User.Role = "user"
		out = append(out, *pair.User)
	}
	if pair.Assistant != nil {
		pair.Assistant.Role = "assistant"
		out = append(out, *pair.Assistant)
	}
	return out, nil
}

// CurrentMessages returns a copy of the current chat's transcript.
func (s *Store) CurrentMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.currentMessages))
	copy(out, s.currentMessages)
	return out
}

// CurrentChat returns the current chat id and bot, empty when none is active.
func (s *Store) CurrentChat() (chatID, botName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentChatID, s.currentBot
}
