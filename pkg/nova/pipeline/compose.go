package pipeline

import (
	"strings"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/personas"
)

// conductSection is the fixed conversation-conduct block every prompt
// carries.
const conductSection = `Conversation Conduct
- Be respectful, supportive, and helpful.
- Never insult, mock, belittle, taunt, or shame the user.
- If user information is missing, politely ask for clarification instead of guessing.
- Keep answers constructive and aligned with the configured bot persona.`

// PersonaContext is the resolved persona a prompt is composed against.
type PersonaContext struct {
	ID         string
	Name       string
	Definition string
}

// resolvePersonaContext picks the persona for a request: by id, then by
// case-insensitive name, then the system "User" persona, then a synthesized
// empty one. Composition never fails for want of a persona.
func (p *Pipeline) resolvePersonaContext(personaID, personaName string) PersonaContext {
	var persona *personas.Persona

	if personaID != "" {
		if found, err := p.personas.Get(personaID); err == nil {
			persona = found
		}
	}
	if persona == nil && personaName != "" {
		want := strings.ToLower(strings.TrimSpace(personaName))
		for _, candidate := range p.personas.GetAll() {
			if strings.ToLower(strings.TrimSpace(candidate.Name)) == want {
				persona = candidate
				break
			}
		}
	}
	if persona == nil {
		if found, err := p.personas.Get(personas.SystemPersonaID); err == nil {
			persona = found
		}
	}
	if persona == nil {
		return PersonaContext{ID: personas.SystemPersonaID, Name: personas.SystemPersonaID}
	}

	id := persona.ID
	if id == "" {
		id = personas.SystemPersonaID
	}
	name := persona.Name
	if name == "" {
		name = personas.SystemPersonaID
	}
	return PersonaContext{
		ID:         id,
		Name:       name,
		Definition: p.personas.Definition(persona),
	}
}

// buildSections renders the system-prompt sections for a bot and persona.
// The iam slot is handled by Compose itself.
func buildSections(bot *bots.Bot, persona PersonaContext) map[string]string {
	botName := bot.Name
	if botName == "" {
		botName = "Bot"
	}
	personaName := persona.Name
	if personaName == "" {
		personaName = "User"
	}

	return map[string]string{
		"conduct":      conductSection,
		"core":         strings.TrimSpace("Definition / Core\nBot Name: " + botName + "\n\nDefinition:\n" + strings.TrimSpace(bot.Core)),
		"scenario":     strings.TrimSpace("Rules / Scenario\nRules:\n" + strings.TrimSpace(bot.Scenario)),
		"user_persona": strings.TrimSpace("User / Persona\nPersona Name: " + personaName + "\n\nDefinition:\n" + strings.TrimSpace(persona.Definition)),
	}
}

// Compose builds the ordered message list for a completion request. The
// bot's prompt order decides where each system section and the transcript
// (the iam slot) land; blank sections are dropped. The latest user message
// is appended unless the history already ends with it.
func Compose(bot *bots.Bot, persona PersonaContext, history []chats.Message, latestUserMessage string) []chats.Message {
	order := bots.NormalizePromptOrder(bot.PromptOrder)
	sections := buildSections(bot, persona)

	hasLatest := len(history) > 0 &&
		history[len(history)-1].Role == "user" &&
		history[len(history)-1].Content == latestUserMessage

	var messages []chats.Message
	iamInserted := false
	for _, key := range order {
		if key == "iam" {
			messages = append(messages, history...)
			iamInserted = true
			continue
		}
		if text := strings.TrimSpace(sections[key]); text != "" {
			messages = append(messages, chats.Message{Role: "system", Content: text})
		}
	}
	if !iamInserted {
		messages = append(messages, history...)
	}
	if latestUserMessage != "" && !hasLatest {
		messages = append(messages, chats.Message{Role: "user", Content: latestUserMessage})
	}
	return messages
}
