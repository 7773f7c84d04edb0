package server

import (
	"net/http"

	"github.com/project-nova/nova/pkg/nova/bots"
)

// handleBots serves the bot collection: GET (or empty POST) lists, POST with
// an action creates, updates, or deletes.
func (s *Server) handleBots(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}

	if r.Method == http.MethodGet || len(body) == 0 {
		summaries := s.bots.Discover()
		s.writeJSON(w, summaries)
		return
	}

	action := bodyString(body, "action")
	if action == "" {
		action = "list"
	}
	switch action {
	case "create":
		bot, err := s.bots.Create(bodyString(body, "name"), bodyString(body, "core_data"))
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, bot)
	case "update":
		s.handleBotUpdate(w, body)
	case "delete":
		name := bodyString(body, "name", "bot_name")
		if name == "" {
			s.writeJSON(w, fail("missing bot name"))
			return
		}
		if err := s.bots.Delete(name); err != nil {
			s.writeJSON(w, fail("failed to delete bot"))
			return
		}
		s.chats.DeleteChatsForBot(name)
		s.mu.Lock()
		if s.currentBot == name {
			s.currentBot = ""
		}
		s.mu.Unlock()
		s.writeJSON(w, map[string]any{"success": true})
	default:
		s.writeJSON(w, []any{})
	}
}

// handleBotUpdate applies a partial update, handling renames first so the
// remaining fields land on the new identity.
func (s *Server) handleBotUpdate(w http.ResponseWriter, body map[string]any) {
	name := bodyString(body, "bot_name")
	if name == "" {
		s.writeJSON(w, fail("missing bot name"))
		return
	}

	if newName := bodyString(body, "new_name"); newName != "" && newName != name {
		if err := s.bots.Rename(name, newName); err != nil {
			s.writeJSON(w, fail("rename failed"))
			return
		}
		s.chats.RenameBot(name, newName)
		s.mu.Lock()
		if s.currentBot == name {
			s.currentBot = newName
		}
		s.mu.Unlock()
		name = newName
	}

	upd := botUpdateFromBody(body)
	bot, err := s.bots.ApplyUpdate(name, upd)
	if err != nil {
		s.writeJSON(w, fail(err.Error()))
		return
	}
	s.writeJSON(w, map[string]any{"success": true, "bot": bot})
}

func botUpdateFromBody(body map[string]any) bots.Update {
	var upd bots.Update
	setString := func(key string, dst **string) {
		if v, ok := body[key].(string); ok {
			*dst = &v
		}
	}
	setString("description", &upd.Description)
	setString("short_description", &upd.ShortDescription)
	setString("cover_art", &upd.CoverArt)
	setString("icon_art", &upd.IconArt)
	setString("core_data", &upd.Core)
	setString("scenario_data", &upd.Scenario)
	setString("active_iam_set", &upd.ActiveIAMSet)

	if v, ok := body["prompt_order"].([]any); ok {
		order := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				order = append(order, s)
			}
		}
		upd.PromptOrder = order
	}
	if v, ok := body["cover_art_fit"]; ok {
		fit := bots.NormalizeFit(v)
		upd.CoverArtFit = &fit
	}
	if v, ok := body["icon_fit"]; ok {
		fit := bots.NormalizeFit(v)
		upd.IconFit = &fit
	}
	return upd
}

// handleBotSelect makes a bot current and loads its most recent chat.
func (s *Server) handleBotSelect(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}
	name := bodyString(body, "bot_name")
	bot, err := s.bots.Load(name)
	if err != nil {
		s.writeJSON(w, map[string]any{"success": false, "bot": nil})
		return
	}

	s.mu.Lock()
	s.currentBot = name
	s.mu.Unlock()

	if last, err := s.chats.GetLastChatForBot(name); err == nil {
		if _, err := s.chats.Load(last.ID, name); err != nil {
			s.logger.Warn("loading last chat", "bot", name, "chat", last.ID, "error", err)
		}
	}
	s.writeJSON(w, map[string]any{"success": true, "bot": bot})
}

// handleBotIAM serves IAM set and item actions for one bot.
func (s *Server) handleBotIAM(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}
	botName := bodyString(body, "bot_name")
	set := bodyString(body, "iam_set")
	action := bodyString(body, "action")
	if action == "" {
		action = "list"
	}

	switch action {
	case "list":
		items, err := s.bots.ListItems(botName, set)
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"items": items})
	case "list_sets":
		sets := s.bots.ListSets(botName)
		s.writeJSON(w, map[string]any{"sets": sets, "current_set": s.currentIAMSet(botName, set, sets)})
	case "list_all":
		sets := s.bots.ListSets(botName)
		payload := make([]map[string]any, 0, len(sets))
		for _, name := range sets {
			items, _ := s.bots.ListItems(botName, name)
			payload = append(payload, map[string]any{"name": name, "items": items})
		}
		s.writeJSON(w, map[string]any{"sets": payload, "current_set": s.currentIAMSet(botName, set, sets)})
	case "create_set":
		name, err := s.bots.CreateSet(botName, set)
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "iam_set": name})
	case "delete_set":
		if err := s.bots.DeleteSet(botName, set); err != nil {
			if refused(err) {
				s.writeJSON(w, fail("the default IAM set cannot be deleted"))
				return
			}
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true})
	case "replace":
		var contents []string
		if items, ok := body["items"].([]any); ok {
			for _, item := range items {
				if text, ok := item.(string); ok {
					contents = append(contents, text)
				}
			}
		}
		if err := s.bots.ReplaceItems(botName, contents, set); err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true})
	case "add":
		item, err := s.bots.AddItem(botName, bodyString(body, "content"), set)
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "item": item})
	case "update":
		if err := s.bots.UpdateItem(botName, bodyString(body, "iam_id"), bodyString(body, "content"), set); err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true})
	case "delete":
		if err := s.bots.DeleteItem(botName, bodyString(body, "iam_id"), set); err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true})
	default:
		s.writeJSON(w, fail("unknown action"))
	}
}

// currentIAMSet picks the set to report as selected: the request's, the
// bot's active set, then the first listed.
func (s *Server) currentIAMSet(botName, requested string, sets []string) string {
	if requested != "" {
		return requested
	}
	if bot, err := s.bots.Load(botName); err == nil && bot.ActiveIAMSet != "" {
		return bot.ActiveIAMSet
	}
	if len(sets) > 0 {
		return sets[0]
	}
	return bots.DefaultSetName
}

// handleBotImages serves bot image actions.
func (s *Server) handleBotImages(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}
	botName := bodyString(body, "bot_name")
	action := bodyString(body, "action")
	if action == "" {
		action = "list"
	}

	switch action {
	case "list":
		s.writeJSON(w, map[string]any{"items": s.bots.ListImages(botName)})
	case "upload":
		item, err := s.bots.AddImage(botName, bodyString(body, "filename"), bodyString(body, "data_url"))
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "item": item})
	case "delete":
		if err := s.bots.DeleteImage(botName, bodyString(body, "filename")); err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true})
	case "set_coverart":
		bot, err := s.bots.SetCoverArtFromImage(botName, bodyString(body, "filename"))
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "bot": bot})
	case "set_icon":
		source := bodyString(body, "source")
		if source == "" {
			source = "Images"
		}
		bot, err := s.bots.SetIconFromImage(botName, bodyString(body, "filename"), source)
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "bot": bot})
	default:
		s.writeJSON(w, fail("unknown action"))
	}
}
