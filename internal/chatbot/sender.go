package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/session"
)

// Sender delivers one message and returns the assistant's reply.
type Sender interface {
	Send(ctx context.Context, message string, cfg session.SystemConfig) (string, error)
	Models(ctx context.Context) (names []string, def string, err error)
}

// HTTPSender talks to a running chat server.
type HTTPSender struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSender(baseURL string, client *http.Client) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &HTTPSender{baseURL: strings.TrimRight(baseURL, "/"), httpClient: client}
}

type chatRequest struct {
	Message       string `json:"message"`
	SystemMessage string `json:"systemMessage,omitempty"`
	Model         string `json:"model,omitempty"`
}

type chatReply struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type modelsReply struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}

func (h *HTTPSender) Send(ctx context.Context, message string, cfg session.SystemConfig) (string, error) {
	jsonData, err := json.Marshal(chatRequest{
		Message:       message,
		SystemMessage: cfg.Instruction(),
		Model:         cfg.Model,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", llmerr.FromTransport("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var reply chatReply
	status, err := h.do(req, &reply)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusOK:
		return reply.Message, nil
	case status == http.StatusBadRequest:
		return "", llmerr.Validation("%s", reply.Error)
	default:
		msg := reply.Error
		if msg == "" {
			msg = fmt.Sprintf("server returned %d", status)
		}
		return "", llmerr.New(llmerr.KindProvider, msg)
	}
}

func (h *HTTPSender) Models(ctx context.Context) ([]string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/api/models", nil)
	if err != nil {
		return nil, "", llmerr.FromTransport("failed to create request", err)
	}
	var reply modelsReply
	status, err := h.do(req, &reply)
	if err != nil {
		return nil, "", err
	}
	if status != http.StatusOK {
		return nil, "", llmerr.New(llmerr.KindProvider, fmt.Sprintf("server returned %d", status))
	}
	return reply.Models, reply.Default, nil
}

func (h *HTTPSender) do(req *http.Request, out any) (int, error) {
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, llmerr.FromTransport("failed to reach chat server", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, llmerr.FromTransport("failed to read response", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, llmerr.Wrap(llmerr.KindProvider, "failed to unmarshal response", err)
	}
	return resp.StatusCode, nil
}

// Handler completes one message in process. *orchestrator.Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, raw string, cfg session.SystemConfig) (string, error)
}

// ModelLister is implemented by *backend.Registry.
type ModelLister interface {
	Names() []string
	Default() string
}

// LocalSender calls the orchestrator directly, with no server in between.
type LocalSender struct {
	Chat     Handler
	Registry ModelLister
}

func (l LocalSender) Send(ctx context.Context, message string, cfg session.SystemConfig) (string, error) {
	return l.Chat.Handle(ctx, message, cfg)
}

func (l LocalSender) Models(ctx context.Context) ([]string, string, error) {
	return l.Registry.Names(), l.Registry.Default(), nil
}
