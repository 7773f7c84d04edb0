package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/project-nova/nova/pkg/nova/chats"
)

func newChatCmd() *cobra.Command {
	var botName string
	var chatTitle string
	var personaID string
	var newChat bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a bot from the terminal",
		Long: `Opens an interactive session with a bot. Resumes the bot's most recent
chat unless --new is given. Type /new to start a fresh chat, /history to
reprint the transcript, and /quit (or Ctrl-D) to leave.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			name := botName
			if name == "" {
				name = app.settings.GetAll().String("default_bot", "")
			}
			if name == "" {
				summaries := app.bots.Discover()
				if len(summaries) == 0 {
					return fmt.Errorf("no bots found under %s; create one with the GUI or the API", app.root.BotsDir())
				}
				name = summaries[0].Name
			}
			if _, err := app.bots.Load(name); err != nil {
				return fmt.Errorf("loading bot %q: %w", name, err)
			}

			info, messages, err := resumeOrCreateChat(app, name, chatTitle, newChat)
			if err != nil {
				return err
			}

			fmt.Printf("Chatting with %s (chat %q). /quit to exit.\n\n", name, info.Title)
			printTranscript(messages)

			rl, err := readline.New("you> ")
			if err != nil {
				return err
			}
			defer rl.Close()

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				text := strings.TrimSpace(line)
				switch {
				case text == "":
					continue
				case text == "/quit" || text == "/exit":
					return nil
				case text == "/history":
					printTranscript(app.chats.CurrentMessages())
					continue
				case text == "/new":
					info, _, err = resumeOrCreateChat(app, name, chatTitle, true)
					if err != nil {
						return err
					}
					fmt.Printf("Started chat %q.\n\n", info.Title)
					continue
				}

				if err := app.chats.AddMessage("user", text, info.ID, name); err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}

				reply, err := app.pipeline.GenerateReply(cmd.Context(), text, name, info.ID, personaID, "")
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				if err := app.chats.AddMessage("assistant", reply, info.ID, name); err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				fmt.Printf("\n%s> %s\n\n", name, reply)
			}
		},
	}

	cmd.Flags().StringVar(&botName, "bot", "", "bot to chat with (default: default_bot setting)")
	cmd.Flags().StringVar(&chatTitle, "title", "Terminal", "title for newly created chats")
	cmd.Flags().StringVar(&personaID, "persona", "", "persona id to speak as")
	cmd.Flags().BoolVar(&newChat, "new", false, "start a fresh chat instead of resuming")

	return cmd
}

// resumeOrCreateChat loads the bot's latest chat, creating one when none
// exists or a fresh chat was requested.
func resumeOrCreateChat(app *app, botName, title string, fresh bool) (*chats.Info, []chats.Message, error) {
	if !fresh {
		info, messages, err := app.chats.LoadLastChatForBot(botName)
		if err == nil {
			return info, messages, nil
		}
	}
	info, err := app.chats.Create(botName, title, "")
	if err != nil {
		return nil, nil, fmt.Errorf("creating chat: %w", err)
	}
	return info, app.chats.CurrentMessages(), nil
}

func printTranscript(messages []chats.Message) {
	for _, msg := range messages {
		fmt.Printf("%s> %s\n", msg.Role, msg.Content)
	}
	if len(messages) > 0 {
		fmt.Println()
	}
}
