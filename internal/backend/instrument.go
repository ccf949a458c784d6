package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"PersonaChat/internal/llmerr"
	"PersonaChat/internal/telemetry"
)

// Instruments are the tracer and meter adapters report to. The zero value records nothing.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
}

func (in Instruments) orNoop() Instruments {
	if in.Tracer == nil || in.Meter == nil {
		tracer, meter := telemetry.Noop()
		if in.Tracer == nil {
			in.Tracer = tracer
		}
		if in.Meter == nil {
			in.Meter = meter
		}
	}
	return in
}

// callFunc performs one provider round trip and reports usage numbers.
type callFunc func(ctx context.Context) (text string, usage map[string]interface{}, err error)

// observe runs call inside a span, records its duration and usage, and
// normalizes the outcome so the result is either text or an *llmerr.Error.
func (in Instruments) observe(ctx context.Context, spanName, provider string, call callFunc) (string, error) {
	in = in.orNoop()
	ctx, span := in.Tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("llm.provider", provider)))
	defer span.End()

	start := time.Now()
	text, usage, err := call(ctx)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llmerr.New(llmerr.KindEmptyResponse, fmt.Sprintf("empty response from %s", provider))
	}

	duration := time.Since(start)
	histogram, herr := in.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if herr == nil {
		histogram.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attribute.String("llm.provider", provider)))
	}

	if err != nil {
		e := llmerr.Normalize(err)
		span.SetAttributes(attribute.String("llm.error_kind", string(e.Kind)))
		span.RecordError(e)
		span.SetStatus(codes.Error, string(e.Kind))
		return "", e
	}

	in.recordUsage(ctx, provider, usage)
	return text, nil
}

// recordUsage records OpenTelemetry counters from provider usage data
func (in Instruments) recordUsage(ctx context.Context, provider string, usage map[string]interface{}) {
	for key, value := range usage {
		var n int64
		switch v := value.(type) {
		case float64:
			n = int64(v)
		case int:
			n = int64(v)
		case int32:
			n = int64(v)
		case int64:
			n = v
		default:
			continue
		}
		counter, err := in.Meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			continue
		}
		counter.Add(ctx, n, metric.WithAttributes(attribute.String("llm.provider", provider)))
	}
}
