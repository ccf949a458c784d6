package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"PersonaChat/internal/chatbot"
	"PersonaChat/internal/telemetry"
)

var (
	chatLocal  bool
	chatServer string
	chatModel  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat in the terminal",
	Long: `Start an interactive chat. Messages go to a running server unless --local
is set, in which case the providers are called in process.

Type /help inside the chat for commands.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatLocal, "local", false, "call providers in process instead of through a server")
	chatCmd.Flags().StringVar(&chatServer, "server", "", "chat server URL (overrides chat.server_url)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "initial model (overrides chat.default_model)")
	chatCmd.SilenceUsage = true
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if chatServer != "" {
		cfg.Chat.ServerURL = chatServer
	}
	if chatModel != "" {
		cfg.Chat.DefaultModel = chatModel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	// keep the terminal for the conversation
	cfg.Log.Stderr = false

	ctx := context.Background()
	var (
		sender chatbot.Sender
		logger *slog.Logger
	)
	if chatLocal {
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		sender = chatbot.LocalSender{Chat: a.orchestrator, Registry: a.registry}
		logger = a.logger
	} else {
		logger, err = telemetry.InitLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		sender = chatbot.NewHTTPSender(cfg.Chat.ServerURL, nil)
	}

	bot := chatbot.NewChatBot(sender, cfg.Chat,
		chatbot.WithLogger(logger),
		chatbot.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
	)
	return bot.Run(ctx)
}
