package chats

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

// seedIndexFile creates an empty Chats/list.txt so the store maintains it.
func seedIndexFile(t *testing.T, root *fsrecord.Root) {
	t.Helper()
	require.NoError(t, os.MkdirAll(root.ChatsDir(), 0o755))
	require.NoError(t, os.WriteFile(root.ChatIndexFile(), []byte("[]"), 0o644))
}

func readIndexFile(t *testing.T, root *fsrecord.Root) []Info {
	t.Helper()
	data, err := os.ReadFile(root.ChatIndexFile())
	require.NoError(t, err)
	var index []Info
	require.NoError(t, json.Unmarshal(data, &index))
	return index
}

func TestIndexNotCreatedWithoutFile(t *testing.T) {
	s, _, root := newTestStores(t)

	_, err := s.Create("Nova", "No Index", "")
	require.NoError(t, err)

	_, statErr := os.Stat(root.ChatIndexFile())
	assert.True(t, os.IsNotExist(statErr), "index never created unsolicited")
}

func TestIndexMaintainedWhenPresent(t *testing.T) {
	s, _, root := newTestStores(t)
	seedIndexFile(t, root)

	info, err := s.Create("Nova", "Indexed", "")
	require.NoError(t, err)

	index := readIndexFile(t, root)
	require.Len(t, index, 1)
	assert.Equal(t, info.ID, index[0].ID)
	assert.Equal(t, "Nova", index[0].Bot)

	require.NoError(t, s.AddMessage("user", "hello", "", ""))
	index = readIndexFile(t, root)
	assert.Equal(t, 1, index[0].MessageCount)
}

func TestMalformedIndexIgnored(t *testing.T) {
	s, _, root := newTestStores(t)
	require.NoError(t, os.MkdirAll(root.ChatsDir(), 0o755))
	require.NoError(t, os.WriteFile(root.ChatIndexFile(), []byte("{broken"), 0o644))

	info, err := s.Create("Nova", "Still Works", "")
	require.NoError(t, err)
	_, err = s.Load(info.ID, "Nova")
	require.NoError(t, err)
}

func TestPruneIndex(t *testing.T) {
	s, _, root := newTestStores(t)
	seedIndexFile(t, root)

	keep, err := s.Create("Nova", "Keep", "")
	require.NoError(t, err)
	gone, err := s.Create("Nova", "Gone", "")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(gone.ChatFolder))

	assert.Equal(t, 1, s.PruneIndex())
	assert.Equal(t, 0, s.PruneIndex(), "second pass finds nothing")

	index := readIndexFile(t, root)
	require.Len(t, index, 1)
	assert.Equal(t, keep.ID, index[0].ID)
}

func TestRenameBotRewritesIndex(t *testing.T) {
	s, botStore, root := newTestStores(t)
	seedIndexFile(t, root)

	info, err := s.Create("Nova", "Moving", "")
	require.NoError(t, err)
	require.NoError(t, botStore.Rename("Nova", "Vega"))

	assert.True(t, s.RenameBot("Nova", "Vega"))
	assert.False(t, s.RenameBot("Nova", "Vega"), "nothing left to rewrite")

	index := readIndexFile(t, root)
	require.Len(t, index, 1)
	assert.Equal(t, "Vega", index[0].Bot)
	assert.NotEqual(t, info.ChatFolder, index[0].ChatFolder)

	// The rewritten folder path resolves under the new bot.
	messages, err := s.Load(info.ID, "Vega")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDeleteChatsForBot(t *testing.T) {
	s, _, root := newTestStores(t)
	seedIndexFile(t, root)

	_, err := s.Create("Nova", "One", "")
	require.NoError(t, err)
	_, err = s.Create("Nova", "Two", "")
	require.NoError(t, err)

	s.DeleteChatsForBot("Nova")
	assert.Empty(t, readIndexFile(t, root))

	chatID, _ := s.CurrentChat()
	assert.Empty(t, chatID)
}
