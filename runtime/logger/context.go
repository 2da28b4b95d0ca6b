package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for fields that are copied onto every record logged with the
// context.
const (
	// ContextKeySessionID identifies one workflow session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyUserID identifies the user the session belongs to.
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyThreadID identifies the thread that triggered the session.
	ContextKeyThreadID contextKey = "thread_id"

	// ContextKeyGuildID identifies the guild of the thread.
	ContextKeyGuildID contextKey = "guild_id"

	// ContextKeyFlowState is the workflow state at the time of logging.
	ContextKeyFlowState contextKey = "flow_state"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyUserID,
	ContextKeyThreadID,
	ContextKeyGuildID,
	ContextKeyFlowState,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithUserID returns a new context with the user ID set.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// WithThreadID returns a new context with the thread ID set.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ContextKeyThreadID, threadID)
}

// WithGuildID returns a new context with the guild ID set.
func WithGuildID(ctx context.Context, guildID string) context.Context {
	return context.WithValue(ctx, ContextKeyGuildID, guildID)
}

// WithFlowState returns a new context with the workflow state set.
func WithFlowState(ctx context.Context, state string) context.Context {
	return context.WithValue(ctx, ContextKeyFlowState, state)
}

// LoggingFields holds the standard logging context fields.
type LoggingFields struct {
	SessionID string
	UserID    string
	ThreadID  string
	GuildID   string
	FlowState string
}

// WithLoggingContext sets every non-empty field of fields on ctx.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.SessionID != "" {
		ctx = WithSessionID(ctx, fields.SessionID)
	}
	if fields.UserID != "" {
		ctx = WithUserID(ctx, fields.UserID)
	}
	if fields.ThreadID != "" {
		ctx = WithThreadID(ctx, fields.ThreadID)
	}
	if fields.GuildID != "" {
		ctx = WithGuildID(ctx, fields.GuildID)
	}
	if fields.FlowState != "" {
		ctx = WithFlowState(ctx, fields.FlowState)
	}
	return ctx
}

// ExtractLoggingFields reads the logging fields stored on ctx.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	get := func(k contextKey) string {
		s, _ := ctx.Value(k).(string)
		return s
	}
	return LoggingFields{
		SessionID: get(ContextKeySessionID),
		UserID:    get(ContextKeyUserID),
		ThreadID:  get(ContextKeyThreadID),
		GuildID:   get(ContextKeyGuildID),
		FlowState: get(ContextKeyFlowState),
	}
}
