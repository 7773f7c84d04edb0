package chats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// chatMeta is the chat.json sidecar: display title, creation stamp, and the
// per-chat persona and IAM set overrides.
type chatMeta struct {
	Title   string `json:"title"`
	Created string `json:"created"`
	Persona string `json:"persona,omitempty"`
	IAMSet  string `json:"iam_set,omitempty"`
}

func (s *Store) writeMeta(folder string, meta chatMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling chat metadata: %w", err)
	}
	return fsrecord.WriteFileAtomic(filepath.Join(folder, "chat.json"), data)
}

func (s *Store) readMeta(folder string) chatMeta {
	var meta chatMeta
	data, err := os.ReadFile(filepath.Join(folder, "chat.json"))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.Warn("chat metadata malformed", "folder", filepath.Base(folder), "error", err)
	}
	return meta
}

// GetChatPersona returns the persona id pinned to a chat, empty when the
// chat follows the global setting.
func (s *Store) GetChatPersona(chatID, botName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.chatFolder(chatID, botName)
	if folder == "" {
		return "", fmt.Errorf("chat %q: %w", chatID, fsrecord.ErrNotFound)
	}
	return s.readMeta(folder).Persona, nil
}

// SetChatPersona pins a persona to a chat. An empty persona clears the pin.
func (s *Store) SetChatPersona(chatID, botName, persona string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.chatFolder(chatID, botName)
	if folder == "" {
		return fmt.Errorf("chat %q: %w", chatID, fsrecord.ErrNotFound)
	}
	meta := s.readMeta(folder)
	meta.Persona = persona
	return s.writeMeta(folder, meta)
}

// GetChatIAMSet returns the IAM set a chat was seeded from.
func (s *Store) GetChatIAMSet(chatID, botName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.chatFolder(chatID, botName)
	if folder == "" {
		return "", fmt.Errorf("chat %q: %w", chatID, fsrecord.ErrNotFound)
	}
	return s.readMeta(folder).IAMSet, nil
}

// SwitchIAMSet re-seeds a chat from a different IAM set. Only pristine chats
// qualify: once the user has sent a message the switch is refused, because
// re-seeding would discard their conversation.
func (s *Store) SwitchIAMSet(chatID, botName, set string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder := s.chatFolder(chatID, botName)
	if folder == "" {
		return fmt.Errorf("chat %q: %w", chatID, fsrecord.ErrNotFound)
	}

	for _, msg := range s.readTranscript(folder) {
		if msg.Role == "user" {
			return fmt.Errorf("chat %q already has user messages: %w", chatID, fsrecord.ErrRefused)
		}
	}

	seed, err := s.bots.ListItems(botName, set)
	if err != nil {
		return err
	}
	var messages []Message
	for _, item := range seed {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		messages = append(messages, Message{Role: "assistant", Content: item.Content, Timestamp: nowISO()})
	}
	if err := s.saveTranscript(folder, messages); err != nil {
		return err
	}

	meta := s.readMeta(folder)
	meta.IAMSet = set
	if err := s.writeMeta(folder, meta); err != nil {
		return err
	}

	if s.currentChatID == chatID {
		s.currentMessages = messages
	}
	s.touchIndex(chatID, len(messages))
	s.logger.Info("chat IAM set switched", "chat", chatID, "set", set)
	return nil
}
