package bots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/fsrecord"
)

func newTestStoreWithBot(t *testing.T) *Store {
	t.Helper()
	s, _ := newTestStore(t)
	_, err := s.Create("Nova", "core")
	require.NoError(t, err)
	return s
}

func TestCreateSetAutoNumbering(t *testing.T) {
	s := newTestStoreWithBot(t)

	first, err := s.CreateSet("Nova", "")
	require.NoError(t, err)
	assert.Equal(t, "IAM_1", first)

	second, err := s.CreateSet("Nova", "")
	require.NoError(t, err)
	assert.Equal(t, "IAM_2", second)

	third, err := s.CreateSet("Nova", "")
	require.NoError(t, err)
	assert.Equal(t, "IAM_3", third)

	// Deleting a middle set never frees its number.
	require.NoError(t, s.DeleteSet("Nova", "IAM_2"))
	fourth, err := s.CreateSet("Nova", "")
	require.NoError(t, err)
	assert.Equal(t, "IAM_4", fourth)
}

func TestCreateSetNamedAndConflict(t *testing.T) {
	s := newTestStoreWithBot(t)

	name, err := s.CreateSet("Nova", "Work Memories")
	require.NoError(t, err)
	assert.Equal(t, "Work_Memories", name)

	_, err = s.CreateSet("Nova", "Work_Memories")
	assert.ErrorIs(t, err, fsrecord.ErrConflict)
}

func TestDeleteSetRefusesDefault(t *testing.T) {
	s := newTestStoreWithBot(t)
	assert.ErrorIs(t, s.DeleteSet("Nova", DefaultSetName), fsrecord.ErrRefused)
}

func TestListSetsOrdersNumericFirst(t *testing.T) {
	s := newTestStoreWithBot(t)
	for _, name := range []string{"IAM_10", "IAM_2", "Zebra", "Alpha"} {
		_, err := s.CreateSet("Nova", name)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"IAM_2", "IAM_10", "Alpha", "Default", "Zebra"}, s.ListSets("Nova"))
}

func TestItemLifecycle(t *testing.T) {
	s := newTestStoreWithBot(t)

	item, err := s.AddItem("Nova", "remember the rooftop", "")
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)

	items, err := s.ListItems("Nova", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "remember the rooftop", items[0].Content)

	require.NoError(t, s.UpdateItem("Nova", item.ID, "updated memory", ""))
	items, err = s.ListItems("Nova", "")
	require.NoError(t, err)
	assert.Equal(t, "updated memory", items[0].Content)

	require.NoError(t, s.DeleteItem("Nova", item.ID, ""))
	items, err = s.ListItems("Nova", "")
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, s.DeleteItem("Nova", item.ID, ""), fsrecord.ErrNotFound)
}

func TestAddItemCollisionKeepsOrder(t *testing.T) {
	s := newTestStoreWithBot(t)

	a, err := s.AddItem("Nova", "first", "")
	require.NoError(t, err)
	b, err := s.AddItem("Nova", "second", "")
	require.NoError(t, err)
	c, err := s.AddItem("Nova", "third", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, b.ID, c.ID)

	items, err := s.ListItems("Nova", "")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first", items[0].Content)
	assert.Equal(t, "second", items[1].Content)
	assert.Equal(t, "third", items[2].Content)
}

func TestReplaceItems(t *testing.T) {
	s := newTestStoreWithBot(t)

	_, err := s.AddItem("Nova", "stale", "")
	require.NoError(t, err)

	require.NoError(t, s.ReplaceItems("Nova", []string{"one", "two", "three"}, ""))
	items, err := s.ListItems("Nova", "")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "one", items[0].Content)
	assert.Equal(t, "three", items[2].Content)
}

func TestLegacyFlatIAMFallback(t *testing.T) {
	s, root := newTestStore(t)
	_, err := s.Create("Nova", "core")
	require.NoError(t, err)

	// Simulate a pre-migration bot: remove IAMs/, populate flat IAM/.
	require.NoError(t, os.RemoveAll(filepath.Join(root.BotDir("Nova"), "IAMs")))
	legacy := filepath.Join(root.BotDir("Nova"), "IAM")
	require.NoError(t, os.MkdirAll(legacy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "iam_old.txt"), []byte("legacy memory"), 0o644))

	assert.Equal(t, []string{DefaultSetName}, s.ListSets("Nova"))

	items, err := s.ListItems("Nova", DefaultSetName)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "legacy memory", items[0].Content)
}
