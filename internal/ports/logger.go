package ports

import "context"

// Logger is the leveled, field-structured logging interface injected into
// every component. Keeping it here decouples the engine from the concrete
// implementation in internal/adapters/logger.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error additionally records the error that triggered the message.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}
