package events

import "context"

type metaKey struct{}

// WithMeta attaches request metadata that published events will carry.
func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the metadata stored by WithMeta, or the zero value.
func MetaFromContext(ctx context.Context) Meta {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}
