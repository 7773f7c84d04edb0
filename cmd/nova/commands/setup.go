package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/project-nova/nova/pkg/nova/config"
	"github.com/project-nova/nova/pkg/nova/settings"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run configuration",
		Long: `Walks through the initial configuration: data root, completion provider,
model, and API key. Writes nova.yaml and the provider settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd)
		},
	}
}

func runSetup(cmd *cobra.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	dataRoot := cfg.DataRoot
	listenAddr := cfg.ListenAddr
	provider := "localhost"
	model := ""
	baseURL := ""
	apiKey := ""
	useKeyring := settings.KeyringAvailable()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data root").
				Description("Folder holding Bots/, Personas/, Chats/, and Settings/").
				Value(&dataRoot),
			huh.NewInput().
				Title("GUI API listen address").
				Value(&listenAddr),
			huh.NewSelect[string]().
				Title("Completion provider").
				Options(
					huh.NewOption("Local server (LM Studio, llama.cpp, Ollama)", "localhost"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("In-process local model", "localmodel"),
				).
				Value(&provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				Description("Model name, or a file under Models/ChatModels for the in-process provider").
				Value(&model),
			huh.NewInput().
				Title("Base URL").
				Description("Leave empty for the provider default").
				Value(&baseURL),
			huh.NewInput().
				Title("API key").
				Description("Leave empty if the provider needs none").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.DataRoot = strings.TrimSpace(dataRoot)
	if cfg.DataRoot == "" {
		cfg.DataRoot = "."
	}
	cfg.ListenAddr = strings.TrimSpace(listenAddr)
	if err := config.SaveToFile(cfg, "nova.yaml"); err != nil {
		return fmt.Errorf("writing nova.yaml: %w", err)
	}
	fmt.Println("Wrote nova.yaml")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	values := map[string]any{
		"api_provider": provider,
		"model":        strings.TrimSpace(model),
	}
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		values["api_base_url"] = trimmed
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey != "" {
		if useKeyring {
			if err := settings.StoreAPIKey(apiKey); err != nil {
				app.logger.Warn("keyring store failed, falling back to settings file", "error", err)
				values["api_key"] = apiKey
			} else {
				fmt.Println("API key stored in the OS keyring.")
			}
		} else {
			values["api_key"] = apiKey
		}
	}

	if err := app.settings.UpdateMultiple(values); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	fmt.Println("Setup complete. Start the server with: nova serve")
	return nil
}
