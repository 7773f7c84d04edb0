// Package maintenance runs the scheduled housekeeping jobs: pruning old
// debug session logs, trimming usage history, and reconciling the flat chat
// index against the folder tree.
package maintenance

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/config"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
	"github.com/project-nova/nova/pkg/nova/usage"
)

// Runner owns the cron scheduler and the job implementations.
type Runner struct {
	root   *fsrecord.Root
	chats  *chats.Store
	usage  *usage.Tracker
	cfg    config.MaintenanceConfig
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a maintenance runner. The usage tracker may be nil.
func New(root *fsrecord.Root, chatStore *chats.Store, tracker *usage.Tracker, cfg config.MaintenanceConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		root:   root,
		chats:  chatStore,
		usage:  tracker,
		cfg:    cfg,
		logger: logger.With("component", "maintenance"),
	}
}

// Start schedules the housekeeping jobs. No-op when maintenance is disabled.
func (r *Runner) Start() error {
	if !r.cfg.Enabled {
		r.logger.Info("maintenance disabled")
		return nil
	}
	schedule := r.cfg.Schedule
	if schedule == "" {
		schedule = "0 4 * * *"
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("maintenance scheduled", "schedule", schedule)
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (r *Runner) Stop() {
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
}

// RunOnce executes every housekeeping job immediately.
func (r *Runner) RunOnce() {
	r.pruneDebugLogs()
	r.pruneUsage()
	r.reconcileChatIndex()
}

// pruneDebugLogs removes debug session logs past the retention window.
func (r *Runner) pruneDebugLogs() {
	if r.cfg.DebugLogRetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -r.cfg.DebugLogRetentionDays)

	entries, err := os.ReadDir(r.root.DebugLogsDir())
	if err != nil {
		return
	}
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(r.root.DebugLogsDir(), e.Name())
		if err := os.RemoveAll(path); err != nil {
			r.logger.Warn("pruning debug log", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info("debug logs pruned", "removed", removed)
	}
}

// pruneUsage trims old usage rows when a retention window is configured.
func (r *Runner) pruneUsage() {
	if r.usage == nil || r.cfg.UsageRetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -r.cfg.UsageRetentionDays)
	removed, err := r.usage.PruneBefore(cutoff)
	if err != nil {
		r.logger.Warn("pruning usage rows", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Info("usage rows pruned", "removed", removed)
	}
}

// reconcileChatIndex drops flat-index entries whose chat folders no longer
// exist. The folder tree is authoritative; the index just drifts.
func (r *Runner) reconcileChatIndex() {
	removed := r.chats.PruneIndex()
	if removed > 0 {
		r.logger.Info("chat index reconciled", "removed", removed)
	}
}
