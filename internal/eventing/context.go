package eventing

import "context"

type contextKey int

const (
	envelopeKey contextKey = iota
	metaKey
)

// WithEnvelope hands the delivered envelope to handlers.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey, env)
}

// EnvelopeFromContext returns the envelope being delivered, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey).(Envelope)
	return env, ok
}

// WithCorrelationID tags events raised under ctx with a request id.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	meta := MetaFromContext(ctx)
	meta.CorrelationID = correlationID
	return context.WithValue(ctx, metaKey, meta)
}

// WithActor records who caused the events raised under ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	meta := MetaFromContext(ctx)
	meta.Actor = actor
	return context.WithValue(ctx, metaKey, meta)
}

// MetaFromContext returns the request metadata set on ctx.
func MetaFromContext(ctx context.Context) Meta {
	meta, _ := ctx.Value(metaKey).(Meta)
	return meta
}
