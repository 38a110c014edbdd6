package instrument

import "context"

// Noop is the instrumenter used when none is installed in the context.
var Noop Instrumenter = &NoopInstrumenter{}

// NoopInstrumenter discards all spans and events.
type NoopInstrumenter struct{}

func (n *NoopInstrumenter) StartSpan(ctx context.Context, _, _, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

func (n *NoopInstrumenter) EmitBusinessEvent(context.Context, string, string, map[string]any) {}

// NoopSpan discards all data.
type NoopSpan struct{}

func (NoopSpan) End()                    {}
func (NoopSpan) SetStatus(string)        {}
func (NoopSpan) SetMetadata(string, any) {}
func (NoopSpan) SetError(error)          {}
func (NoopSpan) TraceID() string         { return "" }
func (NoopSpan) SpanID() string          { return "" }
