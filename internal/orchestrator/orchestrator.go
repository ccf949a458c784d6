// Package orchestrator turns one user message plus a session's system
// configuration into a completion from the selected backend.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"PersonaChat/internal/backend"
	"PersonaChat/internal/digest"
	"PersonaChat/internal/ledger"
	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/prompt"
	"PersonaChat/internal/session"
	"PersonaChat/internal/telemetry"
)

// Resolver maps a model identifier to its adapter. *backend.Registry implements it.
type Resolver interface {
	Resolve(model string) (backend.Adapter, error)
}

// Recorder persists completion metadata. *ledger.Ledger implements it.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Orchestrator holds no session state and is safe for concurrent use.
type Orchestrator struct {
	resolver    Resolver
	logger      *slog.Logger
	now         func() time.Time
	completions metric.Int64Counter
	recorder    Recorder
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithMeter counts completions per model and outcome on meter.
func WithMeter(meter metric.Meter) Option {
	return func(o *Orchestrator) {
		counter, err := meter.Int64Counter(
			"chat.completions",
			metric.WithDescription("Chat completions by model and outcome"),
		)
		if err == nil {
			o.completions = counter
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func New(resolver Resolver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle returns non-empty text or an *llmerr.Error. Validation errors carry a
// message meant for the caller; every other failure is logged in full and
// returned with llmerr.GenericMessage only.
func (o *Orchestrator) Handle(ctx context.Context, raw string, cfg session.SystemConfig) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", llmerr.Validation("Message is required")
	}

	adapter, err := o.resolver.Resolve(cfg.Model)
	if err != nil {
		return "", llmerr.Normalize(err)
	}

	now := o.now()
	p := prompt.Build(raw, cfg.Instruction(), now)
	promptDigest := digest.Prompt(p)
	requestID := telemetry.RequestID(ctx)

	// a request-scoped logger already carries request_id
	logger, scoped := telemetry.ScopedLogger(ctx)
	if !scoped {
		logger = telemetry.FromContext(ctx, o.logger).With("request_id", requestID)
	}
	logger = logger.With(
		"model", adapter.Name(),
		"prompt_digest", promptDigest,
	)
	logger.Debug("dispatching completion", "has_system_instruction", p.HasSystem())

	start := time.Now()
	text, err := adapter.Complete(ctx, p)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llmerr.New(llmerr.KindEmptyResponse, "adapter returned no text")
	}
	duration := time.Since(start)

	entry := ledger.Entry{
		RequestID:    requestID,
		Model:        adapter.Name(),
		Outcome:      ledger.OutcomeOK,
		Duration:     duration,
		PromptDigest: promptDigest,
		CreatedAt:    now,
	}

	if err != nil {
		e := llmerr.Normalize(err)
		logger.Error("completion failed",
			"error_kind", string(e.Kind),
			"error", e.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		entry.Outcome = ledger.OutcomeError
		entry.ErrorKind = string(e.Kind)
		o.record(ctx, logger, entry)
		return "", &llmerr.Error{Kind: e.Kind, Message: llmerr.GenericMessage}
	}

	logger.Info("completion succeeded",
		"duration_ms", duration.Milliseconds(),
		"response_length", len(text),
	)
	o.record(ctx, logger, entry)
	return text, nil
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, e ledger.Entry) {
	if o.completions != nil {
		attrs := []attribute.KeyValue{
			attribute.String("llm.provider", e.Model),
			attribute.String("outcome", e.Outcome),
		}
		if e.ErrorKind != "" {
			attrs = append(attrs, attribute.String("llm.error_kind", e.ErrorKind))
		}
		o.completions.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if o.recorder == nil {
		return
	}
	// a canceled request still gets its row
	if err := o.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn("failed to record completion", "error", err)
	}
}
