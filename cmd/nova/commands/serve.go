package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/project-nova/nova/pkg/nova/maintenance"
	"github.com/project-nova/nova/pkg/nova/server"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the GUI API server",
		Long: `Starts the HTTP server that backs the Nova GUI: bot, persona, chat, and
settings endpoints under /api/, plus the bot and persona artwork files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			addr := listenAddr
			if addr == "" {
				addr = app.cfg.ListenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := maintenance.New(app.root, app.chats, app.usage, app.cfg.Maintenance, app.logger)
			if err := runner.Start(); err != nil {
				app.logger.Warn("maintenance scheduler not started", "error", err)
			}
			defer runner.Stop()

			srv := server.New(app.root, app.bots, app.chats, app.personas, app.settings, app.pipeline, app.usage, app.logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default: from config)")

	return cmd
}
