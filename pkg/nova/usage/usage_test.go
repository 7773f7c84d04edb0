package usage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tracker, err := Open(filepath.Join(t.TempDir(), "usage.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })
	return tracker
}

func TestRecordAndTotals(t *testing.T) {
	tracker := openTestTracker(t)

	tracker.Record("gpt-4", 100, 20)
	tracker.Record("gpt-4", 50, 10)
	tracker.Record("llama3", 5, 5)

	totals, err := tracker.Totals()
	require.NoError(t, err)
	require.Len(t, totals, 2)

	// Largest spend first.
	assert.Equal(t, "gpt-4", totals[0].Model)
	assert.Equal(t, 2, totals[0].Completions)
	assert.Equal(t, 150, totals[0].PromptTokens)
	assert.Equal(t, 30, totals[0].CompletionTokens)
	assert.Equal(t, "llama3", totals[1].Model)
}

func TestTotalsEmpty(t *testing.T) {
	tracker := openTestTracker(t)
	totals, err := tracker.Totals()
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestPruneBefore(t *testing.T) {
	tracker := openTestTracker(t)
	tracker.Record("gpt-4", 10, 2)

	removed, err := tracker.PruneBefore(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed, "fresh rows survive")

	removed, err = tracker.PruneBefore(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	totals, err := tracker.Totals()
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestOpenCreatesParentFolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "usage.db")
	tracker, err := Open(path, nil)
	require.NoError(t, err)
	defer tracker.Close()

	tracker.Record("m", 1, 1)
	totals, err := tracker.Totals()
	require.NoError(t, err)
	require.Len(t, totals, 1)
}
