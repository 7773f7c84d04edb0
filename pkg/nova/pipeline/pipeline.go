// Package pipeline turns a bot, a persona, and a chat transcript into an
// ordered prompt and dispatches it to a completion backend: either a remote
// OpenAI-compatible endpoint or an in-process local model.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
	"github.com/project-nova/nova/pkg/nova/personas"
	"github.com/project-nova/nova/pkg/nova/settings"
)

// UsageRecorder receives token counts after successful remote completions.
type UsageRecorder interface {
	Record(model string, promptTokens, completionTokens int)
}

// Pipeline composes prompts and requests completions.
type Pipeline struct {
	root     *fsrecord.Root
	bots     *bots.Store
	chats    *chats.Store
	personas *personas.Store
	settings *settings.Manager
	usage    UsageRecorder
	remote   *remoteClient
	local    *localRunner
	logger   *slog.Logger
}

// New creates a pipeline over the given stores. The usage recorder may be
// nil.
func New(root *fsrecord.Root, botStore *bots.Store, chatStore *chats.Store, personaStore *personas.Store, settingsMgr *settings.Manager, usage UsageRecorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline")
	return &Pipeline{
		root:     root,
		bots:     botStore,
		chats:    chatStore,
		personas: personaStore,
		settings: settingsMgr,
		usage:    usage,
		remote:   newRemoteClient(logger),
		local:    newLocalRunner(logger),
		logger:   logger,
	}
}

// modelsDir is where relative local model names resolve.
func (p *Pipeline) modelsDir() string { return p.root.ModelsDir() }

// GenerateReply composes the prompt for a user message against a chat's
// transcript and returns the completion text.
func (p *Pipeline) GenerateReply(ctx context.Context, userMessage, botName, chatID, personaID, personaName string) (string, error) {
	if strings.TrimSpace(userMessage) == "" {
		return "", fmt.Errorf("empty user message")
	}
	if botName == "" {
		return "", fmt.Errorf("no bot selected")
	}

	bot, err := p.bots.Load(botName)
	if err != nil {
		return "", fmt.Errorf("loading bot configuration: %w", err)
	}

	cfg := settings.ResolveAPIKey(p.settings.GetAll(), p.logger)
	if err := ValidateSettings(cfg, p.modelsDir()); err != nil {
		return "", err
	}

	persona := p.resolvePersonaContext(personaID, personaName)
	history, err := p.chatHistory(chatID, botName)
	if err != nil {
		return "", err
	}
	composed := Compose(bot, persona, history, userMessage)

	p.logger.Debug("prompt composed",
		"bot", botName,
		"persona", persona.Name,
		"history", len(history),
		"messages", len(composed),
	)

	payload := BuildPayload(cfg, composed, persona)
	return p.dispatch(ctx, cfg, payload)
}

// GenerateReplyFromHistory composes against an explicit history slice
// instead of a stored chat. Used by the regenerate and continue flows, which
// rewind or extend the transcript before asking for a completion.
func (p *Pipeline) GenerateReplyFromHistory(ctx context.Context, botName string, history []chats.Message, personaID, personaName, latestUserMessage string) (string, error) {
	if botName == "" {
		return "", fmt.Errorf("no bot selected")
	}

	bot, err := p.bots.Load(botName)
	if err != nil {
		return "", fmt.Errorf("loading bot configuration: %w", err)
	}

	cfg := settings.ResolveAPIKey(p.settings.GetAll(), p.logger)
	if err := ValidateSettings(cfg, p.modelsDir()); err != nil {
		return "", err
	}

	persona := p.resolvePersonaContext(personaID, personaName)
	normalized := normalizeHistory(history)

	userMessage := strings.TrimSpace(latestUserMessage)
	if userMessage == "" && len(normalized) > 0 && normalized[len(normalized)-1].Role == "user" {
		userMessage = normalized[len(normalized)-1].Content
	}

	composed := Compose(bot, persona, normalized, userMessage)
	payload := BuildPayload(cfg, composed, persona)
	return p.dispatch(ctx, cfg, payload)
}

// dispatch routes the payload to the provider the settings select.
func (p *Pipeline) dispatch(ctx context.Context, cfg settings.Settings, payload *Payload) (string, error) {
	provider := strings.ToLower(cfg.String("api_provider", "localhost"))
	if provider == "localmodel" {
		return p.local.Complete(ctx, cfg, p.modelsDir(), payload)
	}

	text, usage, err := p.remote.Complete(ctx, cfg, payload)
	if err != nil {
		return "", err
	}
	if p.usage != nil && usage != nil {
		p.usage.Record(payload.Model, usage.PromptTokens, usage.CompletionTokens)
	}
	return text, nil
}

// chatHistory returns the normalized transcript of a chat. An empty chatID
// means the current chat; a different chatID is loaded first.
func (p *Pipeline) chatHistory(chatID, botName string) ([]chats.Message, error) {
	var messages []chats.Message
	currentID, currentBot := p.chats.CurrentChat()
	switch {
	case chatID != "" && (chatID != currentID || botName != currentBot):
		loaded, err := p.chats.Load(chatID, botName)
		if err != nil {
			return nil, err
		}
		messages = loaded
	default:
		messages = p.chats.CurrentMessages()
	}
	return normalizeHistory(messages), nil
}

// normalizeHistory keeps only user and assistant messages with non-blank
// content, trimming whitespace.
func normalizeHistory(messages []chats.Message) []chats.Message {
	var out []chats.Message
	for _, msg := range messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		out = append(out, chats.Message{Role: msg.Role, Content: content})
	}
	return out
}
