package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/chats"
)

func testBot(order ...string) *bots.Bot {
	return &bots.Bot{
		Name:        "Nova",
		Core:        "A sardonic ship AI.",
		Scenario:    "Deep space salvage run.",
		PromptOrder: order,
	}
}

func testPersona() PersonaContext {
	return PersonaContext{ID: "Ace", Name: "Ace", Definition: "A fearless pilot."}
}

func TestComposeDefaultOrder(t *testing.T) {
	history := []chats.Message{
		{Role: "assistant", Content: "seeded memory"},
		{Role: "user", Content: "previous question"},
		{Role: "assistant", Content: "previous answer"},
	}
	messages := Compose(testBot(), testPersona(), history, "what now?")

	// conduct, scenario, core, user_persona, then history, then the latest.
	require.Len(t, messages, 4+len(history)+1)
	assert.Equal(t, "system", messages[0].Role)
	assert.True(t, strings.HasPrefix(messages[0].Content, "Conversation Conduct"))
	assert.True(t, strings.HasPrefix(messages[1].Content, "Rules / Scenario"))
	assert.True(t, strings.HasPrefix(messages[2].Content, "Definition / Core"))
	assert.Contains(t, messages[2].Content, "Bot Name: Nova")
	assert.True(t, strings.HasPrefix(messages[3].Content, "User / Persona"))
	assert.Contains(t, messages[3].Content, "Persona Name: Ace")
	assert.Contains(t, messages[3].Content, "A fearless pilot.")

	assert.Equal(t, "seeded memory", messages[4].Content)
	last := messages[len(messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "what now?", last.Content)
}

func TestComposeIAMSlotPlacement(t *testing.T) {
	history := []chats.Message{{Role: "user", Content: "hi"}}
	messages := Compose(testBot("iam", "core"), testPersona(), history, "next")

	// History lands first because iam leads the order.
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "hi", messages[0].Content)
	assert.True(t, strings.HasPrefix(messages[1].Content, "Definition / Core"))
}

func TestComposeBlankScenarioKeepsHeader(t *testing.T) {
	bot := testBot()
	bot.Scenario = "   "
	messages := Compose(bot, testPersona(), nil, "hello")

	// A blank scenario still yields the section header, trimmed of the
	// trailing whitespace.
	found := false
	for _, msg := range messages {
		if strings.HasPrefix(msg.Content, "Rules / Scenario") {
			found = true
			assert.Equal(t, "Rules / Scenario\nRules:", msg.Content)
		}
	}
	assert.True(t, found)
}

func TestComposeDoesNotDuplicateLatestUserMessage(t *testing.T) {
	history := []chats.Message{{Role: "user", Content: "already here"}}
	messages := Compose(testBot(), testPersona(), history, "already here")

	count := 0
	for _, msg := range messages {
		if msg.Role == "user" && msg.Content == "already here" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestComposeEmptyLatestMessage(t *testing.T) {
	history := []chats.Message{{Role: "assistant", Content: "reply"}}
	messages := Compose(testBot(), testPersona(), history, "")

	last := messages[len(messages)-1]
	assert.Equal(t, "assistant", last.Role)
}
