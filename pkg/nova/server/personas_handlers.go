package server

import (
	"net/http"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/personas"
)

// handlePersonas serves the persona collection: GET (or empty POST) lists,
// POST with an action creates, updates, or deletes.
func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}

	if r.Method == http.MethodGet || len(body) == 0 {
		s.writeJSON(w, s.personas.GetAll())
		return
	}

	action := bodyString(body, "action")
	if action == "" {
		action = "create"
	}
	switch action {
	case "create":
		persona, err := s.personas.Create(bodyString(body, "name"), bodyString(body, "description"), bodyString(body, "cover_art"))
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, persona)
	case "update":
		id := bodyString(body, "persona_id", "id")
		if id == "" {
			s.writeJSON(w, fail("missing persona id"))
			return
		}
		persona, err := s.personas.ApplyUpdate(id, personaUpdateFromBody(body))
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, persona)
	case "delete":
		id := bodyString(body, "persona_id", "id")
		if id == "" {
			s.writeJSON(w, fail("missing persona id"))
			return
		}
		if err := s.personas.Delete(id); err != nil {
			if refused(err) {
				s.writeJSON(w, fail("Cannot delete default User persona"))
				return
			}
			s.writeJSON(w, fail("failed to delete persona"))
			return
		}
		s.mu.Lock()
		if s.currentPersonaID == id {
			s.currentPersonaID = ""
		}
		s.mu.Unlock()
		s.writeJSON(w, map[string]any{"success": true})
	case "select":
		id := bodyString(body, "persona_id", "id")
		persona, err := s.personas.Get(id)
		if err != nil {
			s.writeJSON(w, fail("persona not found"))
			return
		}
		s.mu.Lock()
		s.currentPersonaID = id
		s.mu.Unlock()
		s.writeJSON(w, persona)
	default:
		s.writeJSON(w, map[string]any{})
	}
}

func personaUpdateFromBody(body map[string]any) personas.Update {
	var upd personas.Update
	setString := func(key string, dst **string) {
		if v, ok := body[key].(string); ok {
			*dst = &v
		}
	}
	setString("name", &upd.Name)
	setString("description", &upd.Description)
	setString("cover_art", &upd.CoverArt)
	setString("icon_art", &upd.IconArt)

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

// handlePersonaImages serves persona image actions.
func (s *Server) handlePersonaImages(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeJSON(w, fail("invalid request body"))
		return
	}
	id := bodyString(body, "persona_id", "id", "persona")
	action := bodyString(body, "action")
	if action == "" {
		action = "list"
	}

	switch action {
	case "list":
		s.writeJSON(w, map[string]any{"items": s.personas.ListImages(id)})
	case "upload":
		item, err := s.personas.AddImage(id, bodyString(body, "filename"), bodyString(body, "data_url"))
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "item": item})
	case "delete":
		if err := s.personas.DeleteImage(id, bodyString(body, "filename")); err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true})
	case "set_coverart":
		persona, err := s.personas.SetCoverArtFromImage(id, bodyString(body, "filename"))
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "persona": persona})
	case "set_icon":
		source := bodyString(body, "source")
		if source == "" {
			source = "Images"
		}
		persona, err := s.personas.SetIconFromImage(id, bodyString(body, "filename"), source)
		if err != nil {
			s.writeJSON(w, fail(err.Error()))
			return
		}
		s.writeJSON(w, map[string]any{"success": true, "persona": persona})
	default:
		s.writeJSON(w, fail("unknown action"))
	}
}
