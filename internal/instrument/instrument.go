package instrument

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rulegen-backend/internal/logger"
)

// Context keys
type ctxKey int

const (
	traceIDKey ctxKey = iota
	parentSpanIDKey
	instrumenterKey
)

// Instrumenter interface defines the tracing API.
type Instrumenter interface {
	StartSpan(ctx context.Context, source, component, action string) (context.Context, Span)
	EmitBusinessEvent(ctx context.Context, action, document string, metadata map[string]any)
}

// Span interface represents a timed operation span.
type Span interface {
	End()
	SetStatus(status string)
	SetMetadata(key string, value any)
	SetError(err error)
	TraceID() string
	SpanID() string
}

// Event is one finished span or business event.
type Event struct {
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	EventType    string         `json:"event_type"`
	Source       string         `json:"source"`
	Component    string         `json:"component"`
	Action       string         `json:"action"`
	Document     string         `json:"document,omitempty"`
	DurationMs   float64        `json:"duration_ms"`
	Status       string         `json:"status,omitempty"`
	Error        string         `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Context helpers

// WithTraceID sets the trace ID in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func withParentSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, parentSpanIDKey, spanID)
}

func getParentSpanID(ctx context.Context) string {
	if v, ok := ctx.Value(parentSpanIDKey).(string); ok {
		return v
	}
	return ""
}

// WithInstrumenter sets the instrumenter in the context.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, instrumenterKey, inst)
}

// GetInstrumenter returns the instrumenter from the context,
// or a NoopInstrumenter if none is set.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if v, ok := ctx.Value(instrumenterKey).(Instrumenter); ok {
		return v
	}
	return Noop
}

// InstrumenterImpl records finished spans into a buffer and logs them.
type InstrumenterImpl struct {
	buffer *EventBuffer
	log    *logger.Logger
}

// NewInstrumenter creates an instrumenter backed by buffer.
func NewInstrumenter(buffer *EventBuffer, log *logger.Logger) *InstrumenterImpl {
	return &InstrumenterImpl{buffer: buffer, log: logger.OrNop(log)}
}

// StartSpan creates a new span and returns the updated context.
func (i *InstrumenterImpl) StartSpan(ctx context.Context, source, component, action string) (context.Context, Span) {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
	}
	span := &SpanImpl{
		inst:      i,
		startTime: time.Now(),
		event: Event{
			TraceID:      traceID,
			SpanID:       uuid.NewString(),
			ParentSpanID: getParentSpanID(ctx),
			EventType:    "system",
			Source:       source,
			Component:    component,
			Action:       action,
		},
	}

	// Child spans reference this span as parent
	ctx = withParentSpanID(ctx, span.event.SpanID)
	return ctx, span
}

// EmitBusinessEvent records a one-shot event with no duration.
func (i *InstrumenterImpl) EmitBusinessEvent(ctx context.Context, action, document string, metadata map[string]any) {
	event := Event{
		TraceID:      GetTraceID(ctx),
		SpanID:       uuid.NewString(),
		ParentSpanID: getParentSpanID(ctx),
		EventType:    "business",
		Source:       "business",
		Component:    "pipeline",
		Action:       action,
		Document:     document,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
	i.buffer.Enqueue(event)
	i.log.Info(action, "trace_id", event.TraceID, "document", document, "metadata", metadata)
}

// SpanImpl implements the Span interface with timing and metadata.
type SpanImpl struct {
	inst      *InstrumenterImpl
	startTime time.Time
	mu        sync.Mutex
	event     Event
	ended     bool
}

func (s *SpanImpl) TraceID() string { return s.event.TraceID }
func (s *SpanImpl) SpanID() string  { return s.event.SpanID }

func (s *SpanImpl) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Status = status
}

func (s *SpanImpl) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event.Metadata == nil {
		s.event.Metadata = make(map[string]any)
	}
	if key == "document" {
		if doc, ok := value.(string); ok {
			s.event.Document = doc
			return
		}
	}
	s.event.Metadata[key] = value
}

// SetError marks the span failed. A nil error is ignored.
func (s *SpanImpl) SetError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event.Status = "error"
	s.event.Error = err.Error()
}

func (s *SpanImpl) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.event.DurationMs = float64(time.Since(s.startTime).Microseconds()) / 1000.0
	s.event.CreatedAt = s.startTime
	if s.event.Status == "" {
		s.event.Status = "ok"
	}
	event := s.event
	s.mu.Unlock()

	s.inst.buffer.Enqueue(event)
	kv := []any{
		"trace_id", event.TraceID,
		"span_id", event.SpanID,
		"duration_ms", event.DurationMs,
		"status", event.Status,
	}
	if event.Document != "" {
		kv = append(kv, "document", event.Document)
	}
	if event.Error != "" {
		kv = append(kv, "error", event.Error)
	}
	s.inst.log.Debug(event.Source+"."+event.Component+"."+event.Action, kv...)
}
