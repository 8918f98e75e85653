// Package kit holds the context keys shared across galfo packages so that
// middleware and handlers agree on where request-scoped identity lives.
package kit

import "context"

type contextKey string

const (
	UserIDKey  contextKey = "kit_user_id"
	HandleKey  contextKey = "kit_handle"
	TraceIDKey contextKey = "kit_trace_id"
	RoleKey    contextKey = "kit_role"
	TokenKey   contextKey = "kit_token"
)

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func WithHandle(ctx context.Context, h string) context.Context {
	return context.WithValue(ctx, HandleKey, h)
}
func GetHandle(ctx context.Context) string {
	v, _ := ctx.Value(HandleKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}
func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}

// WithToken stores the raw session token so background work started by a
// handler can authenticate follow-up calls after the request ends.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}
func GetToken(ctx context.Context) string {
	v, _ := ctx.Value(TokenKey).(string)
	return v
}
