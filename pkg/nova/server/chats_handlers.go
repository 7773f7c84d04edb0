package server

import (
	"net/http"
	"strings"

	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/personas"
)

// continuePrompt instructs the model during the continue-message flow.
const continuePrompt = "Continue the previous assistant response from exactly where it stopped. " +
	"Return only new continuation text. Do not restate, summarize, or repeat any earlier sentences."

// handleChats serves the chat collection: GET (or empty POST) lists, POST
// with an action mutates.
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}

	if r.Method == http.MethodGet || len(body) == 0 {
		s.writeJSON(w, s.chats.GetAllChats())
		return
	}

	action := bodyString(body, "action")
	if action == "" {
		action = "create"
	}
	switch action {
	case "create":
		s.handleChatCreate(w, body)
	case "delete":
		if err := s.chats.Delete(bodyString(body, "chat_id")); err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true})
	case "switch_iam":
		s.handleChatSwitchIAM(w, body)
	case "edit_message":
		s.handleChatEditMessage(w, body)
	case "delete_message":
		s.handleChatDeleteMessage(w, body)
	case "regenerate_message":
		s.handleChatRegenerate(w, r, body)
	case "continue_message":
		s.handleChatContinue(w, r, body)
	default:
		s.writeJSON(w, map[string]any{})
	}
}

func (s *Server) handleChatCreate(w http.ResponseWriter, body map[string]any) {
	botName := bodyString(body, "bot_name")
	info, err := s.chats.Create(botName, bodyString(body, "title"), bodyString(body, "iam_set"))
	if err != nil {
		s.writeJSON(w, fail(err.Error()))
		return
	}
	if persona := bodyString(body, "persona_name"); persona != "" {
		if err := s.chats.SetChatPersona(info.ID, botName, persona); err != nil {
			s.logger.Warn("storing chat persona", "chat", info.ID, "error", err)
		}
	}
	s.setCurrentBot(botName)
	s.writeJSON(w, info)
}

func (s *Server) handleChatSwitchIAM(w http.ResponseWriter, body map[string]any) {
	chatID := bodyString(body, "chat_id")
	botName := bodyString(body, "bot_name")
	if err := s.chats.SwitchIAMSet(chatID, botName, bodyString(body, "iam_set")); err != nil {
		if refused(err) {
			s.writeJSON(w, fail("Cannot switch IAM after first user message"))
			return
		}
		s.writeJSON(w, fail(err.Error()))
		return
	}
	if persona := bodyString(body, "persona_name"); persona != "" {
		if err := s.chats.SetChatPersona(chatID, botName, persona); err != nil {
			s.logger.Warn("storing chat persona", "chat", chatID, "error", err)
		}
	}
	s.setCurrentBot(botName)
	s.writeJSON(w, map[string]any{"success": true, "messages": s.chats.CurrentMessages()})
}

func (s *Server) handleChatEditMessage(w http.ResponseWriter, body map[string]any) {
	chatID := bodyString(body, "chat_id")
	botName := bodyString(body, "bot_name")
	index := bodyInt(body, "message_index", -1)
	if err := s.chats.EditMessage(chatID, botName, index, bodyString(body, "content")); err != nil {
		s.writeJSON(w, fail("Failed to edit message"))
		return
	}
	s.setCurrentBot(botName)
	s.writeJSON(w, map[string]any{"success": true, "messages": s.chats.CurrentMessages()})
}

func (s *Server) handleChatDeleteMessage(w http.ResponseWriter, body map[string]any) {
	chatID := bodyString(body, "chat_id")
	botName := bodyString(body, "bot_name")
	index := bodyInt(body, "message_index", -1)
	if err := s.chats.DeleteMessage(chatID, botName, index); err != nil {
		s.writeJSON(w, fail("Failed to delete message"))
		return
	}
	s.setCurrentBot(botName)
	s.writeJSON(w, map[string]any{"success": true, "messages": s.chats.CurrentMessages()})
}

// handleChatRegenerate reruns the completion for a message. On an assistant
// message the preceding user message is replayed and the reply replaced; on
// a trailing user message a fresh assistant reply is inserted after it.
func (s *Server) handleChatRegenerate(w http.ResponseWriter, r *http.Request, body map[string]any) {
	chatID := bodyString(body, "chat_id")
	botName := bodyString(body, "bot_name")
	index := bodyInt(body, "message_index", -1)

	messages, err := s.chats.Load(chatID, botName)
	if err != nil {
		s.writeJSON(w, fail("Failed to load chat"))
		return
	}
	if index < 0 || index >= len(messages) {
		s.writeJSON(w, fail("Invalid message index"))
		return
	}

	target := messages[index]
	if target.Role != "assistant" && target.Role != "user" {
		s.writeJSON(w, fail("Target must be a user or assistant message"))
		return
	}

	var history []chats.Message
	var userPrompt string
	if target.Role == "assistant" {
		if index == 0 || messages[index-1].Role != "user" {
			s.writeJSON(w, fail("No user prompt found before assistant message"))
			return
		}
		history = messages[:index]
		userPrompt = messages[index-1].Content
	} else {
		if index+1 < len(messages) && messages[index+1].Role == "assistant" {
			s.writeJSON(w, fail("Use regenerate on assistant message when a reply already exists"))
			return
		}
		history = messages[:index]
		userPrompt = target.Content
	}

	personaName := s.resolveChatPersona(chatID, botName, bodyString(body, "persona_name"))
	reply, err := s.pipeline.GenerateReplyFromHistory(r.Context(), botName, history, bodyString(body, "persona_id"), personaName, userPrompt)
	if err != nil {
		s.writeJSON(w, fail("Failed to regenerate: "+err.Error()))
		return
	}

	if target.Role == "assistant" {
		err = s.chats.EditMessage(chatID, botName, index, reply)
	} else {
		err = s.chats.InsertMessage(chatID, botName, index+1, "assistant", reply)
	}
	if err != nil {
		s.writeJSON(w, fail("Failed to save regenerated message"))
		return
	}
	s.setCurrentBot(botName)
	s.writeJSON(w, map[string]any{"success": true, "messages": s.chats.CurrentMessages()})
}

// handleChatContinue extends an assistant message with fresh continuation
// text, merged to avoid repeating what the model already said.
func (s *Server) handleChatContinue(w http.ResponseWriter, r *http.Request, body map[string]any) {
	chatID := bodyString(body, "chat_id")
	botName := bodyString(body, "bot_name")
	index := bodyInt(body, "message_index", -1)

	messages, err := s.chats.Load(chatID, botName)
	if err != nil {
		s.writeJSON(w, fail("Failed to load chat"))
		return
	}
	if index < 0 || index >= len(messages) || messages[index].Role != "assistant" {
		s.writeJSON(w, fail("Target must be an assistant message"))
		return
	}

	personaName := s.resolveChatPersona(chatID, botName, bodyString(body, "persona_name"))
	history := messages[:index+1]
	continuation, err := s.pipeline.GenerateReplyFromHistory(r.Context(), botName, history, bodyString(body, "persona_id"), personaName, continuePrompt)
	if err != nil {
		s.writeJSON(w, fail("Failed to continue message: "+err.Error()))
		return
	}

	merged := chats.MergeContinuation(messages[index].Content, continuation)
	if err := s.chats.EditMessage(chatID, botName, index, merged); err != nil {
		s.writeJSON(w, fail("Failed to save continued message"))
		return
	}
	s.setCurrentBot(botName)
	s.writeJSON(w, map[string]any{"success": true, "messages": s.chats.CurrentMessages()})
}

// handleMessage is the main conversational endpoint. A user message gets a
// generated reply; save_response stores an assistant message verbatim.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}

	message := bodyString(body, "message")
	chatID := bodyString(body, "chat_id")
	botName := bodyString(body, "bot_name")

	if bodyBool(body, "save_response") {
		if chatID != "" && botName != "" {
			if err := s.chats.AddMessage("assistant", message, chatID, botName); err != nil {
				s.writeJSON(w, fail(err.Error()))
				return
			}
		}
		s.writeJSON(w, map[string]any{"success": true})
		return
	}

	activeChatID, activeBot := chatID, botName
	if activeChatID == "" || activeBot == "" {
		currentID, currentBot := s.chats.CurrentChat()
		if activeChatID == "" {
			activeChatID = currentID
		}
		if activeBot == "" {
			activeBot = currentBot
			if activeBot == "" {
				activeBot = s.getCurrentBot()
			}
		}
	}

	personaName := s.resolveChatPersona(activeChatID, activeBot, bodyString(body, "persona_name"))
	if activeChatID != "" && activeBot != "" {
		if err := s.chats.AddMessage("user", message, activeChatID, activeBot); err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		if err := s.chats.SetChatPersona(activeChatID, activeBot, personaName); err != nil {
			s.logger.Warn("storing chat persona", "chat", activeChatID, "error", err)
		}
	}

	reply, err := s.pipeline.GenerateReply(r.Context(), message, activeBot, activeChatID, bodyString(body, "persona_id"), personaName)
	if err != nil {
		s.writeJSON(w, map[string]any{"response": "API error: " + err.Error()})
		return
	}
	s.writeJSON(w, map[string]any{"response": reply})
}

// handleLoadChat loads a chat's transcript and makes it current.
func (s *Server) handleLoadChat(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}
	botName := bodyString(body, "bot_name")
	messages, err := s.chats.Load(bodyString(body, "chat_id"), botName)
	if err != nil {
		s.writeJSON(w, map[string]any{"messages": nil})
		return
	}
	s.setCurrentBot(botName)
	s.writeJSON(w, map[string]any{"messages": messages})
}

// handleLastChat returns the most recent chat for a bot, or across all bots
// when no bot is named.
func (s *Server) handleLastChat(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}
	botName := bodyString(body, "bot_name")

	var info *chats.Info
	if botName != "" {
		info, err = s.chats.GetLastChatForBot(botName)
	} else {
		info, err = s.chats.GetLastChatAnyBot()
	}
	if err != nil {
		s.writeJSON(w, map[string]any{})
		return
	}

	messages, err := s.chats.Load(info.ID, info.Bot)
	if err != nil {
		s.writeJSON(w, map[string]any{})
		return
	}
	s.writeJSON(w, map[string]any{"chat_info": info, "messages": messages})
}

// resolveChatPersona decides which persona name a request acts as: an
// explicit non-default request wins, then the persona stored on the chat,
// then the system persona.
func (s *Server) resolveChatPersona(chatID, botName, requested string) string {
	chosen := strings.TrimSpace(requested)
	stored := ""
	if chatID != "" {
		if p, err := s.chats.GetChatPersona(chatID, botName); err == nil {
			stored = strings.TrimSpace(p)
		}
	}
	if chosen == "" || chosen == personas.SystemPersonaID {
		if stored != "" && stored != personas.SystemPersonaID {
			chosen = stored
		} else if chosen == "" {
			chosen = stored
		}
	}
	if chosen == "" {
		chosen = personas.SystemPersonaID
	}
	return chosen
}

func (s *Server) setCurrentBot(name string) {
	if name == "" {
		return
	}
	s.mu.Lock()
	s.currentBot = name
	s.mu.Unlock()
}

func (s *Server) getCurrentBot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentBot
}
