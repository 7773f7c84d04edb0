package maintenance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/config"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
	"github.com/project-nova/nova/pkg/nova/usage"
)

func newTestRunner(t *testing.T, cfg config.MaintenanceConfig, tracker *usage.Tracker) (*Runner, *fsrecord.Root) {
	t.Helper()
	root := fsrecord.NewRoot(t.TempDir())
	botStore := bots.NewStore(root, nil)
	chatStore := chats.NewStore(root, botStore, nil)
	return New(root, chatStore, tracker, cfg, nil), root
}

func writeLogFile(t *testing.T, dir, name string, modTime time.Time) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("session log"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func TestRunOncePrunesOldDebugLogs(t *testing.T) {
	cfg := config.MaintenanceConfig{Enabled: true, DebugLogRetentionDays: 14}
	runner, root := newTestRunner(t, cfg, nil)

	old := writeLogFile(t, root.DebugLogsDir(), "old_session.txt", time.Now().AddDate(0, 0, -30))
	fresh := writeLogFile(t, root.DebugLogsDir(), "fresh_session.txt", time.Now())

	runner.RunOnce()

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "expired log is removed")
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "recent log survives")
}

func TestRunOnceKeepsDebugLogsWithoutRetention(t *testing.T) {
	cfg := config.MaintenanceConfig{Enabled: true, DebugLogRetentionDays: 0}
	runner, root := newTestRunner(t, cfg, nil)

	old := writeLogFile(t, root.DebugLogsDir(), "old_session.txt", time.Now().AddDate(0, 0, -365))

	runner.RunOnce()

	_, err := os.Stat(old)
	assert.NoError(t, err)
}

func TestRunOnceKeepsRecentUsageRows(t *testing.T) {
	tracker, err := usage.Open(filepath.Join(t.TempDir(), "usage.db"), nil)
	require.NoError(t, err)
	defer tracker.Close()
	tracker.Record("gpt-4", 10, 2)

	cfg := config.MaintenanceConfig{Enabled: true, UsageRetentionDays: 7}
	runner, _ := newTestRunner(t, cfg, tracker)
	runner.RunOnce()

	totals, err := tracker.Totals()
	require.NoError(t, err)
	require.Len(t, totals, 1)
}

func TestRunOnceReconcilesChatIndex(t *testing.T) {
	cfg := config.MaintenanceConfig{Enabled: true}
	runner, root := newTestRunner(t, cfg, nil)

	liveFolder := filepath.Join(root.BotDir("Nova"), "ChatLive_20240101_120000")
	require.NoError(t, os.MkdirAll(liveFolder, 0o755))

	index := []chats.Info{
		{ID: "ChatLive_20240101_120000", Bot: "Nova", ChatFolder: liveFolder},
		{ID: "ChatGone_20240101_130000", Bot: "Nova", ChatFolder: filepath.Join(root.BotDir("Nova"), "ChatGone_20240101_130000")},
	}
	data, err := json.Marshal(index)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(root.ChatsDir(), 0o755))
	require.NoError(t, os.WriteFile(root.ChatIndexFile(), data, 0o644))

	runner.RunOnce()

	raw, err := os.ReadFile(root.ChatIndexFile())
	require.NoError(t, err)
	var kept []chats.Info
	require.NoError(t, json.Unmarshal(raw, &kept))
	require.Len(t, kept, 1)
	assert.Equal(t, "ChatLive_20240101_120000", kept[0].ID)
}

func TestStartDisabledIsNoop(t *testing.T) {
	cfg := config.MaintenanceConfig{Enabled: false}
	runner, _ := newTestRunner(t, cfg, nil)

	require.NoError(t, runner.Start())
	runner.Stop()
}
