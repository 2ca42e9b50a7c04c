package logger

import "context"

// Logger is the structured logger used across the agent. Fields are attached per call.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})

	// WithField returns a new logger with the given field added to all subsequent log entries
	WithField(key string, value interface{}) Logger

	// WithFields returns a new logger with the given fields added to all subsequent log entries
	WithFields(fields map[string]interface{}) Logger
}

// Nop discards everything. Components fall back to it when constructed without a logger.
type Nop struct{}

func (Nop) Debug(context.Context, string, map[string]interface{}) {}
func (Nop) Info(context.Context, string, map[string]interface{})  {}
func (Nop) Warn(context.Context, string, map[string]interface{})  {}
func (Nop) Error(context.Context, string, map[string]interface{}) {}

func (n Nop) WithField(string, interface{}) Logger     { return n }
func (n Nop) WithFields(map[string]interface{}) Logger { return n }
