package chatbot

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"PersonaChat/internal/config"
	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/session"
)

// ChatBot is the interactive terminal client. It owns one session and sends
// through a Sender, so the same loop works against a server or in process.
type ChatBot struct {
	sender    Sender
	session   *session.Session
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	exportDir string
	now       func() time.Time
}

type Option func(*ChatBot)

func WithIO(in io.Reader, out io.Writer) Option {
	return func(cb *ChatBot) {
		cb.in = in
		cb.out = out
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cb *ChatBot) { cb.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(cb *ChatBot) { cb.now = now }
}

// WithSession replaces the session NewChatBot would create.
func WithSession(s *session.Session) Option {
	return func(cb *ChatBot) { cb.session = s }
}

// NewChatBot creates a new ChatBot instance
func NewChatBot(sender Sender, cfg config.ChatConfig, opts ...Option) *ChatBot {
	cb := &ChatBot{
		sender:    sender,
		logger:    slog.Default(),
		in:        os.Stdin,
		out:       os.Stdout,
		exportDir: cfg.ExportDir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	if cb.session == nil {
		cb.session = session.New(
			session.SystemConfig{Model: cfg.DefaultModel},
			session.WithModelValidator(ValidModel),
			session.WithClock(cb.now),
		)
	}
	return cb
}

// ValidModel accepts the known identifiers and "" (server default).
func ValidModel(m string) bool {
	return m == "" || config.IsKnownModel(m)
}

// Session exposes the underlying session.
func (cb *ChatBot) Session() *session.Session {
	return cb.session
}

func (cb *ChatBot) printf(format string, args ...any) {
	fmt.Fprintf(cb.out, format, args...)
}

// sendMessage runs one guarded round trip. The user message is recorded
// before the call; the reply only on success.
func (cb *ChatBot) sendMessage(ctx context.Context, userMessage string) (string, error) {
	msg, cfg, err := cb.session.BeginSend(userMessage)
	if err != nil {
		return "", err
	}

	reply, err := cb.sender.Send(ctx, userMessage, cfg)
	if err != nil {
		cb.session.FailSend()
		return "", err
	}
	if _, err := cb.session.CompleteSend(reply); err != nil {
		return "", err
	}

	cb.logger.Info("message exchanged",
		"session_id", cb.session.ID(),
		"message_id", msg.ID,
		"model", cfg.Model,
		"response_length", len(reply),
	)
	return reply, nil
}

func (cb *ChatBot) exportTo(path string) (string, error) {
	if path == "" {
		path = filepath.Join(cb.exportDir, session.ExportFileName(cb.now()))
	}
	var buf bytes.Buffer
	if err := session.Encode(&buf, cb.session.ExportSnapshot()); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

func (cb *ChatBot) importFrom(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import: %w", err)
	}
	defer f.Close()

	snap, err := session.Decode(f)
	if err != nil {
		return err
	}
	return cb.session.ImportSnapshot(snap)
}

func describe(c session.SystemConfig) string {
	state := "off"
	if c.Enabled {
		state = "on"
	}
	content := c.Content
	if strings.TrimSpace(content) == "" {
		content = "(none)"
	}
	model := c.Model
	if model == "" {
		model = "(server default)"
	}
	return fmt.Sprintf("model=%s system=%s instruction=%q", model, state, content)
}

// handleCommand handles special commands
func (cb *ChatBot) handleCommand(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}
	arg := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		if err := cb.session.Reset(); err != nil {
			return false, err
		}
		cb.printf("Started new session: %s\n", cb.session.ID())
		return false, nil

	case "/model":
		if arg == "" {
			return false, fmt.Errorf("usage: /model <%s>", strings.Join(config.KnownModels(), "|"))
		}
		name := strings.ToLower(arg)
		if !config.IsKnownModel(name) {
			return false, fmt.Errorf("unknown model: %s", arg)
		}
		cb.session.EditDraft(func(c *session.SystemConfig) { c.Model = name })
		cb.printf("Model set to %s (unsaved, /save to apply)\n", name)
		return false, nil

	case "/system":
		cb.session.EditDraft(func(c *session.SystemConfig) { c.Content = arg })
		cb.printf("System instruction staged (unsaved, /save to apply)\n")
		return false, nil

	case "/system-on", "/system-off":
		enabled := parts[0] == "/system-on"
		cb.session.EditDraft(func(c *session.SystemConfig) { c.Enabled = enabled })
		cb.printf("System instruction %s (unsaved, /save to apply)\n", map[bool]string{true: "enabled", false: "disabled"}[enabled])
		return false, nil

	case "/settings":
		cb.printf("Current: %s\n", describe(cb.session.Config()))
		if cb.session.HasDraft() {
			cb.printf("Unsaved: %s\n", describe(cb.session.Draft()))
		}
		return false, nil

	case "/save":
		if !cb.session.HasDraft() {
			cb.printf("No unsaved settings\n")
			return false, nil
		}
		if err := cb.session.SaveDraft(); err != nil {
			return false, err
		}
		cb.logger.Info("settings saved", "session_id", cb.session.ID(), "model", cb.session.Config().Model)
		cb.printf("Settings saved: %s\n", describe(cb.session.Config()))
		return false, nil

	case "/cancel":
		cb.session.CancelDraft()
		cb.printf("Unsaved settings discarded\n")
		return false, nil

	case "/export":
		path, err := cb.exportTo(arg)
		if err != nil {
			return false, fmt.Errorf("export failed: %w", err)
		}
		cb.printf("Exported %d messages to %s\n", len(cb.session.Messages()), path)
		return false, nil

	case "/import":
		if arg == "" {
			return false, fmt.Errorf("usage: /import <path>")
		}
		if err := cb.importFrom(arg); err != nil {
			return false, fmt.Errorf("import failed: %w", err)
		}
		cb.printf("Imported %d messages from %s\n", len(cb.session.Messages()), arg)
		return false, nil

	case "/history":
		msgs := cb.session.Messages()
		if len(msgs) == 0 {
			cb.printf("No messages yet.\n")
			return false, nil
		}
		for _, m := range msgs {
			ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
			cb.printf("[%s] %s: %s\n", ts, m.Role, m.Content)
		}
		return false, nil

	case "/models":
		names, def, err := cb.sender.Models(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list models: %w", err)
		}
		current := cb.session.Config().Model
		if current == "" {
			current = def
		}
		cb.printf("\nAvailable models:\n")
		for i, name := range names {
			mark := ""
			if name == current {
				mark = " (current)"
			}
			cb.printf("%d. %s%s\n", i+1, name, mark)
		}
		cb.printf("\n")
		return false, nil

	case "/help":
		cb.printf("Available commands:\n")
		cb.printf("  /quit, /exit          - Exit the chatbot\n")
		cb.printf("  /new-session          - Clear history and start a new session\n")
		cb.printf("  /model <name>         - Stage a model change (%s)\n", strings.Join(config.KnownModels(), "|"))
		cb.printf("  /system <text>        - Stage a system instruction\n")
		cb.printf("  /system-on            - Stage enabling the system instruction\n")
		cb.printf("  /system-off           - Stage disabling the system instruction\n")
		cb.printf("  /settings             - Show current and unsaved settings\n")
		cb.printf("  /save                 - Apply unsaved settings\n")
		cb.printf("  /cancel               - Discard unsaved settings\n")
		cb.printf("  /export [path]        - Export the chat as JSON\n")
		cb.printf("  /import <path>        - Replace the chat with an exported file\n")
		cb.printf("  /history              - Show the conversation\n")
		cb.printf("  /models               - List available models\n")
		cb.printf("  /help                 - Show this help message\n")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

// userMessage is what the terminal shows for err.
func userMessage(err error) string {
	var e *llmerr.Error
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return err.Error()
}

// Run starts the chat bot
func (cb *ChatBot) Run(ctx context.Context) error {
	cb.printf("=== PersonaChat ===\n")
	cb.printf("Session: %s\n", cb.session.ID())
	cb.printf("Settings: %s\n", describe(cb.session.Config()))
	cb.printf("Type /help for commands, /quit to exit\n\n")

	scanner := bufio.NewScanner(cb.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		cb.printf("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				cb.printf("Error: %v\n", err)
				cb.logger.Warn("command error", "command", strings.Fields(input)[0], "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		cb.printf("...\n")
		response, err := cb.sendMessage(ctx, input)
		if err != nil {
			cb.printf("Error: %s\n", userMessage(err))
			cb.logger.Error("failed to send message", "session_id", cb.session.ID(), "error", err)
			continue
		}

		cb.printf("Bot: %s\n\n", response)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	cb.printf("Goodbye!\n")
	return nil
}
