package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single chat message
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// SystemConfig is the per-session personality and backend selection.
type SystemConfig struct {
	Content string `json:"content"`
	Enabled bool   `json:"enabled"`
	Model   string `json:"model"`
}

// Instruction returns the system instruction to send, or "" when disabled or blank.
func (c SystemConfig) Instruction() string {
	if !c.Enabled {
		return ""
	}
	return strings.TrimSpace(c.Content)
}

var (
	ErrBusy         = errors.New("a message is already being sent")
	ErrNotSending   = errors.New("no message is being sent")
	ErrEmptyMessage = errors.New("message is empty")
)

// Session holds the message history and system configuration of one chat.
// History is append-only; ImportSnapshot is the only operation that replaces it.
type Session struct {
	mu       sync.RWMutex
	id       string
	messages []Message
	config   SystemConfig
	draft    *SystemConfig
	sending  bool

	now        func() time.Time
	newID      func() string
	validModel func(string) bool
}

type Option func(*Session)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDs overrides message id generation.
func WithIDs(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

// WithModelValidator rejects configs and snapshots naming unsupported models.
func WithModelValidator(valid func(string) bool) Option {
	return func(s *Session) { s.validModel = valid }
}

// New creates an empty session with the given committed config.
func New(cfg SystemConfig, opts ...Option) *Session {
	s := &Session{
		config:   cfg,
		messages: []Message{},
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = "session_" + s.newID()
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// AppendUserMessage records a user message.
func (s *Session) AppendUserMessage(content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(RoleUser, content)
}

// AppendAssistantMessage records an assistant reply.
func (s *Session) AppendAssistantMessage(content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(RoleAssistant, content)
}

func (s *Session) appendLocked(role Role, content string) Message {
	ts := s.now().UnixMilli()
	if n := len(s.messages); n > 0 && ts < s.messages[n-1].Timestamp {
		ts = s.messages[n-1].Timestamp
	}
	// content is stored as export will write it
	msg := Message{
		ID:        s.newID(),
		Role:      role,
		Content:   strings.ToValidUTF8(content, "\uFFFD"),
		Timestamp: ts,
	}
	s.messages = append(s.messages, msg)
	return msg
}

// Messages returns a copy of the history.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Config returns the committed system configuration.
func (s *Session) Config() SystemConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// BeginSend claims the in-flight slot and records the user message. It fails
// with ErrBusy while a previous send has not completed, so replies can never
// be appended out of order.
func (s *Session) BeginSend(content string) (Message, SystemConfig, error) {
	if strings.TrimSpace(content) == "" {
		return Message{}, SystemConfig{}, ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return Message{}, SystemConfig{}, ErrBusy
	}
	s.sending = true
	return s.appendLocked(RoleUser, content), s.config, nil
}

// CompleteSend records the reply and releases the in-flight slot.
func (s *Session) CompleteSend(reply string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sending {
		return Message{}, ErrNotSending
	}
	s.sending = false
	return s.appendLocked(RoleAssistant, reply), nil
}

// FailSend releases the in-flight slot without a reply.
func (s *Session) FailSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false
}

// Busy reports whether a send is in flight.
func (s *Session) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sending
}

// Reset starts a fresh conversation, keeping the committed config.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return ErrBusy
	}
	s.id = "session_" + s.newID()
	s.messages = []Message{}
	s.draft = nil
	return nil
}

// Draft returns the staged config, starting from the committed one.
func (s *Session) Draft() SystemConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.draft != nil {
		return *s.draft
	}
	return s.config
}

// HasDraft reports whether unsaved settings exist.
func (s *Session) HasDraft() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draft != nil
}

// EditDraft applies edit to the staged copy. The committed config is untouched.
func (s *Session) EditDraft(edit func(*SystemConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.config
	if s.draft != nil {
		d = *s.draft
	}
	edit(&d)
	s.draft = &d
}

// SaveDraft commits the staged config.
func (s *Session) SaveDraft() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return nil
	}
	if err := s.checkConfig(*s.draft); err != nil {
		return err
	}
	s.config = *s.draft
	s.draft = nil
	return nil
}

// CancelDraft discards the staged config.
func (s *Session) CancelDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
}

// CommitConfig replaces the committed config in one step.
func (s *Session) CommitConfig(cfg SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkConfig(cfg); err != nil {
		return err
	}
	s.config = cfg
	s.draft = nil
	return nil
}

func (s *Session) checkConfig(cfg SystemConfig) error {
	if s.validModel != nil && !s.validModel(cfg.Model) {
		return fmt.Errorf("unsupported model: %q", cfg.Model)
	}
	return nil
}

// ExportSnapshot projects the history and committed config.
func (s *Session) ExportSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{Messages: msgs, SystemConfig: s.config}
}

// ImportSnapshot replaces history and config together. An invalid snapshot
// leaves the session exactly as it was.
func (s *Session) ImportSnapshot(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return ErrBusy
	}
	if err := s.checkConfig(snap.SystemConfig); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	msgs := make([]Message, len(snap.Messages))
	copy(msgs, snap.Messages)
	s.messages = msgs
	s.config = snap.SystemConfig
	s.draft = nil
	return nil
}
