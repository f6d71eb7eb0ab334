package logx

import (
	"context"
	"unicode/utf8"

	"pkt.systems/penroseide/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// Or returns logger, or the context-free default logger when logger is nil.
func Or(logger pslog.Logger) pslog.Logger {
	if logger == nil {
		return pslog.Ctx(context.Background())
	}
	return logger
}

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithEndpoint annotates the logger with the server endpoint when available.
func WithEndpoint(log pslog.Logger, endpoint string) pslog.Logger {
	if endpoint != "" {
		log = log.With("endpoint", endpoint)
	}
	return log
}

// WithSeq annotates the logger with a request sequence number when set.
func WithSeq(log pslog.Logger, seq uint64) pslog.Logger {
	if seq != 0 {
		log = log.With("seq", seq)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// Preview truncates value to at most max bytes for log fields without
// splitting a UTF-8 sequence.
func Preview(value []byte, max int) string {
	if max <= 0 || len(value) <= max {
		return string(value)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return string(value[:cut])
}
