package llm

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

type contextKey string

const (
	llmContextKey contextKey = "llm_context"
)

// WithContext returns a context carrying identifiers for the guest message
// being answered. Values merge with any already attached.
func WithContext(ctx context.Context, values map[string]string) context.Context {
	merged := GetContext(ctx)
	if merged == nil {
		merged = make(map[string]string, len(values))
	}
	for k, v := range values {
		if v != "" {
			merged[k] = v
		}
	}
	return context.WithValue(ctx, llmContextKey, merged)
}

// GetContext returns a copy of the identifiers attached to ctx, or nil.
func GetContext(ctx context.Context) map[string]string {
	c, ok := ctx.Value(llmContextKey).(map[string]string)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// contextFields renders the identifiers as sorted zap fields.
func contextFields(ctx context.Context) []zap.Field {
	values := GetContext(ctx)
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.String(k, values[k]))
	}
	return fields
}
