package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Snapshot is the portable export/import unit of a session.
type Snapshot struct {
	Messages     []Message    `json:"messages"`
	SystemConfig SystemConfig `json:"systemConfig"`
}

// Validate checks the invariants a session history must hold.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Messages))
	var last int64
	for i, m := range s.Messages {
		if m.ID == "" {
			return fmt.Errorf("invalid snapshot: message %d has no id", i)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("invalid snapshot: duplicate message id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid snapshot: message %d has unknown role %q", i, m.Role)
		}
		if i > 0 && m.Timestamp < last {
			return fmt.Errorf("invalid snapshot: message %d is older than the one before it", i)
		}
		last = m.Timestamp
	}
	return nil
}

// wire types make every field mandatory on import.
type wireMessage struct {
	ID        *string `json:"id"`
	Role      *Role   `json:"role"`
	Content   *string `json:"content"`
	Timestamp *int64  `json:"timestamp"`
}

type wireConfig struct {
	Content *string `json:"content"`
	Enabled *bool   `json:"enabled"`
	Model   *string `json:"model"`
}

type wireSnapshot struct {
	Messages     *[]wireMessage `json:"messages"`
	SystemConfig *wireConfig    `json:"systemConfig"`
}

// Encode writes the snapshot as pretty-printed UTF-8 JSON.
func Encode(w io.Writer, snap Snapshot) error {
	if snap.Messages == nil {
		snap.Messages = []Message{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// Decode parses an exported snapshot. Unknown fields, missing fields and
// trailing data are all rejected.
func Decode(r io.Reader) (Snapshot, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var w wireSnapshot
	if err := dec.Decode(&w); err != nil {
		return Snapshot{}, fmt.Errorf("invalid snapshot: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Snapshot{}, errors.New("invalid snapshot: unexpected data after document")
	}

	if w.Messages == nil {
		return Snapshot{}, errors.New("invalid snapshot: missing messages")
	}
	if w.SystemConfig == nil {
		return Snapshot{}, errors.New("invalid snapshot: missing systemConfig")
	}
	c := w.SystemConfig
	if c.Content == nil || c.Enabled == nil || c.Model == nil {
		return Snapshot{}, errors.New("invalid snapshot: systemConfig needs content, enabled and model")
	}

	snap := Snapshot{
		Messages:     make([]Message, 0, len(*w.Messages)),
		SystemConfig: SystemConfig{Content: *c.Content, Enabled: *c.Enabled, Model: *c.Model},
	}
	for i, m := range *w.Messages {
		if m.ID == nil || m.Role == nil || m.Content == nil || m.Timestamp == nil {
			return Snapshot{}, fmt.Errorf("invalid snapshot: message %d needs id, role, content and timestamp", i)
		}
		snap.Messages = append(snap.Messages, Message{
			ID:        *m.ID,
			Role:      *m.Role,
			Content:   *m.Content,
			Timestamp: *m.Timestamp,
		})
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ExportFileName embeds an ISO-8601 (basic format) UTC timestamp.
func ExportFileName(t time.Time) string {
	return "chat-export-" + t.UTC().Format("20060102T150405Z") + ".json"
}
