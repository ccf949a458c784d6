// Package server exposes the chat orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/session"
	"PersonaChat/internal/telemetry"
)

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 1 << 20

// ChatHandler completes one message. *orchestrator.Orchestrator implements it.
type ChatHandler interface {
	Handle(ctx context.Context, raw string, cfg session.SystemConfig) (string, error)
}

// ModelLister reports the selectable models. *backend.Registry implements it.
type ModelLister interface {
	Names() []string
	Default() string
}

type Server struct {
	chat           ChatHandler
	models         ModelLister
	logger         *slog.Logger
	requestTimeout time.Duration
}

func New(chat ChatHandler, models ModelLister, logger *slog.Logger, requestTimeout time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		chat:           chat,
		models:         models,
		logger:         logger,
		requestTimeout: requestTimeout,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/models", s.handleModels).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// wrapped outside the router so 404 and 405 responses are logged and tagged too
	return cors(requestID(accessLog(s.logger)(recoverPanic(r))))
}

type chatRequest struct {
	Message       string `json:"message"`
	SystemMessage string `json:"systemMessage,omitempty"`
	Model         string `json:"model,omitempty"`
}

type chatResponse struct {
	Message string `json:"message"`
}

type modelsResponse struct {
	Models  []string `json:"models"`
	Default string   `json:"default"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	cfg := session.SystemConfig{
		Content: req.SystemMessage,
		Enabled: strings.TrimSpace(req.SystemMessage) != "",
		Model:   req.Model,
	}
	text, err := s.chat.Handle(ctx, req.Message, cfg)
	if err != nil {
		e := llmerr.Normalize(err)
		if e.Kind == llmerr.KindValidation {
			writeError(w, http.StatusBadRequest, e.UserMessage())
			return
		}
		telemetry.FromContext(ctx, s.logger).Warn("chat request failed", "error_kind", string(e.Kind))
		writeError(w, http.StatusInternalServerError, llmerr.GenericMessage)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Message: text})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Models:  s.models.Names(),
		Default: s.models.Default(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
