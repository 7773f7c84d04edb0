// Package commands implements the Nova CLI commands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/project-nova/nova/pkg/nova/bots"
	"github.com/project-nova/nova/pkg/nova/chats"
	"github.com/project-nova/nova/pkg/nova/config"
	"github.com/project-nova/nova/pkg/nova/fsrecord"
	"github.com/project-nova/nova/pkg/nova/personas"
	"github.com/project-nova/nova/pkg/nova/pipeline"
	"github.com/project-nova/nova/pkg/nova/settings"
	"github.com/project-nova/nova/pkg/nova/usage"
)

// NewRootCmd creates the root `nova` command.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "nova",
		Short:   "Nova local chatbot studio",
		Version: version,
		Long: `Nova manages character bots, user personas, and chat transcripts on the
local filesystem, and generates replies through an OpenAI-compatible API or
an in-process local model.

Examples:
  nova setup
  nova serve
  nova chat --bot Nova`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// Optional .env for API keys and local overrides.
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to config file (default: auto-discover)")
	rootCmd.PersistentFlags().String("data", "", "data root override (default: from config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newUsageCmd(),
	)

	return rootCmd
}

// resolveConfig loads the config from --config or auto-discovery, falling
// back to defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	var cfg *config.Config
	if configPath == "" {
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
		cfg = loaded
	}

	if dataRoot, _ := cmd.Root().PersistentFlags().GetString("data"); dataRoot != "" {
		cfg.DataRoot = dataRoot
	}
	return cfg, nil
}

// buildLogger configures slog from the config and the --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// app bundles the wired stores for the commands.
type app struct {
	cfg      *config.Config
	root     *fsrecord.Root
	settings *settings.Manager
	bots     *bots.Store
	personas *personas.Store
	chats    *chats.Store
	pipeline *pipeline.Pipeline
	usage    *usage.Tracker
	logger   *slog.Logger
}

// buildApp wires the stores and pipeline over the configured data root.
func buildApp(cmd *cobra.Command) (*app, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := buildLogger(cmd, cfg)

	root := fsrecord.NewRoot(cfg.DataRoot)
	settingsMgr := settings.NewManager(root, logger)
	botStore := bots.NewStore(root, logger)
	personaStore := personas.NewStore(root, logger)
	if err := personaStore.EnsureSystemPersona(); err != nil {
		logger.Warn("provisioning system persona", "error", err)
	}
	chatStore := chats.NewStore(root, botStore, logger)

	tracker, err := usage.Open(filepath.Join(root.Base(), "Settings", "usage.db"), logger)
	if err != nil {
		logger.Warn("usage tracking unavailable", "error", err)
		tracker = nil
	}

	var recorder pipeline.UsageRecorder
	if tracker != nil {
		recorder = tracker
	}
	pipe := pipeline.New(root, botStore, chatStore, personaStore, settingsMgr, recorder, logger)

	return &app{
		cfg:      cfg,
		root:     root,
		settings: settingsMgr,
		bots:     botStore,
		personas: personaStore,
		chats:    chatStore,
		pipeline: pipe,
		usage:    tracker,
		logger:   logger,
	}, nil
}

// Close releases resources held by the app.
func (a *app) Close() {
	if a.usage != nil {
		a.usage.Close()
	}
}
