package chats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// pair is the on-disk unit of a transcript: one user turn and its assistant
// reply, either side possibly absent.
type pair struct {
	User      *Message `json:"user"`
	Assistant *Message `json:"assistant"`
}

// pairMessages groups a flat transcript into (user, assistant) pairs. A user
// message waits for the next assistant message; two user messages in a row
// close the first pair with a null assistant side, and an assistant message
// with no pending user gets a null user side.
func pairMessages(messages []Message) []pair {
	var pairs []pair
	var pending *Message
	for i := range messages {
		msg := messages[i]
		switch msg.Role {
		case "user":
			if pending != nil {
				pairs = append(pairs, pair{User: pending})
			}
			pending = &msg
		case "assistant":
			if pending == nil {
				pairs = append(pairs, pair{Assistant: &msg})
			} else {
				pairs = append(pairs, pair{User: pending, Assistant: &msg})
				pending = nil
			}
		}
	}
	if pending != nil {
		pairs = append(pairs, pair{User: pending})
	}
	return pairs
}

// filenameStamp converts an ISO timestamp into the filename-safe form used
// in transcript filenames. Sub-second precision is dropped.
func filenameStamp(timestamp string) string {
	safe := strings.NewReplacer(":", "_", "-", "_").Replace(timestamp)
	if idx := strings.Index(safe, "."); idx >= 0 {
		safe = safe[:idx]
	}
	return safe
}

// saveTranscript replaces the chat's IAM/ folder with the paired form of the
// given messages in one atomic swap. On failure the previous transcript is
// untouched.
func (s *Store) saveTranscript(folder string, messages []Message) error {
	iamDir := filepath.Join(folder, "IAM")
	pairs := pairMessages(messages)

	return fsrecord.SwapDirAtomic(iamDir, func(tmp string) error {
		for idx, p := range pairs {
			base := p.User
			if base == nil {
				base = p.Assistant
			}
			timestamp := base.Timestamp
			if timestamp == "" {
				timestamp = nowISO()
			}
			name := fmt.Sprintf("message_%03d_%s.txt", idx, filenameStamp(timestamp))

			data, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling message pair %d: %w", idx, err)
			}
			if err := os.WriteFile(filepath.Join(tmp, name), data, 0o644); err != nil {
				return fmt.Errorf("writing message pair %d: %w", idx, err)
			}
		}
		return nil
	})
}

// ensureCurrent makes the given chat the current one, loading it if needed.
// Empty arguments mean the already-current chat.
func (s *Store) ensureCurrent(chatID, botName string) (string, string, error) {
	if chatID == "" {
		chatID = s.currentChatID
	}
	if botName == "" {
		botName = s.currentBot
	}
	if chatID == "" || botName == "" {
		return "", "", fmt.Errorf("no active chat: %w", fsrecord.ErrNotFound)
	}
	if chatID != s.currentChatID {
		if _, err := s.loadLocked(chatID, botName); err != nil {
			return "", "", err
		}
	}
	return chatID, botName, nil
}

// persistCurrent writes the current transcript back and refreshes the flat
// index entry when one exists.
func (s *Store) persistCurrent() error {
	folder := s.chatFolder(s.currentChatID, s.currentBot)
	if folder == "" {
		return fmt.Errorf("chat %q: %w", s.currentChatID, fsrecord.ErrNotFound)
	}
	if err := s.saveTranscript(folder, s.currentMessages); err != nil {
		return err
	}
	s.touchIndex(s.currentChatID, len(s.currentMessages))
	return nil
}

// AddMessage appends a message to a chat. Empty chatID/botName target the
// current chat.
func (s *Store) AddMessage(role, content, chatID, botName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.ensureCurrent(chatID, botName); err != nil {
		return err
	}
	s.currentMessages = append(s.currentMessages, Message{
		Role:      role,
		Content:   content,
		Timestamp: nowISO(),
	})
	return s.persistCurrent()
}

// EditMessage replaces the content of the message at index.
func (s *Store) EditMessage(chatID, botName string, index int, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.ensureCurrent(chatID, botName); err != nil {
		return err
	}
	if index < 0 || index >= len(s.currentMessages) {
		return fmt.Errorf("message index %d of %d: %w", index, len(s.currentMessages), fsrecord.ErrInvalidIndex)
	}
	s.currentMessages[index].Content = content
	return s.persistCurrent()
}

// InsertMessage inserts a message at index, shifting later messages down.
// Index may equal the transcript length, which appends.
func (s *Store) InsertMessage(chatID, botName string, index int, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.ensureCurrent(chatID, botName); err != nil {
		return err
	}
	if index < 0 || index > len(s.currentMessages) {
		return fmt.Errorf("message index %d of %d: %w", index, len(s.currentMessages), fsrecord.ErrInvalidIndex)
	}
	msg := Message{Role: role, Content: content, Timestamp: nowISO()}
	s.currentMessages = append(s.currentMessages, Message{})
	copy(s.currentMessages[index+1:], s.currentMessages[index:])
	s.currentMessages[index] = msg
	return s.persistCurrent()
}

// DeleteMessage removes the message at index.
func (s *Store) DeleteMessage(chatID, botName string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.ensureCurrent(chatID, botName); err != nil {
		return err
	}
	if index < 0 || index >= len(s.currentMessages) {
		return fmt.Errorf("message index %d of %d: %w", index, len(s.currentMessages), fsrecord.ErrInvalidIndex)
	}
	s.currentMessages = append(s.currentMessages[:index], s.currentMessages[index+1:]...)
	return s.persistCurrent()
}

// TruncateAfter drops every message past index, keeping [0, index]. Used by
// the regenerate flow to rewind to the last user message.
func (s *Store) TruncateAfter(chatID, botName string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.ensureCurrent(chatID, botName); err != nil {
		return err
	}
	if index < 0 || index >= len(s.currentMessages) {
		return fmt.Errorf("message index %d of %d: %w", index, len(s.currentMessages), fsrecord.ErrInvalidIndex)
	}
	s.currentMessages = s.currentMessages[:index+1]
	return s.persistCurrent()
}

// ReplaceLastAssistant overwrites the content of the most recent assistant
// message. Used by the continue flow after merging a continuation.
func (s *Store) ReplaceLastAssistant(chatID, botName, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.ensureCurrent(chatID, botName); err != nil {
		return err
	}
	for i := len(s.currentMessages) - 1; i >= 0; i-- {
		if s.currentMessages[i].Role == "assistant" {
			s.currentMessages[i].Content = content
			s.currentMessages[i].Timestamp = nowISO()
			return s.persistCurrent()
		}
	}
	return fmt.Errorf("no assistant message to replace: %w", fsrecord.ErrNotFound)
}
