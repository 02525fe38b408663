package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit event types.
const (
	AuditSession = "session"
	AuditConfig  = "config"
)

// AuditEvent is one line of the audit log: who opened or closed which
// channel, and which configuration changed at runtime.
type AuditEvent struct {
	Type     string
	Actor    string // Discord user id or "system"
	Action   string // session_opened, session_closed, prompt_reloaded, ...
	Status   string
	Metadata map[string]interface{}
}

// AuditLogger appends audit events as JSON lines.
type AuditLogger struct {
	mu     sync.Mutex
	out    zerolog.Logger
	closer io.Closer
}

// NewAuditLogger writes audit events to w. Close closes w when it is an
// io.Closer.
func NewAuditLogger(w io.Writer) *AuditLogger {
	a := &AuditLogger{out: zerolog.New(w)}
	if c, ok := w.(io.Closer); ok {
		a.closer = c
	}
	return a
}

var audit atomic.Pointer[AuditLogger]

// GetAuditLogger returns the process audit logger. Until InitAuditLogger
// is called events go to stderr.
func GetAuditLogger() *AuditLogger {
	if a := audit.Load(); a != nil {
		return a
	}
	audit.CompareAndSwap(nil, NewAuditLogger(os.Stderr))
	return audit.Load()
}

// InitAuditLogger points the process audit logger at an append-only file,
// closing the previous file if there was one.
func InitAuditLogger(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	if prev := audit.Swap(NewAuditLogger(f)); prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Record writes the event. When ctx carries a recording span, the event is
// also attached to it and the line carries its trace id.
func (a *AuditLogger) Record(ctx context.Context, ev AuditEvent) {
	var traceID string
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+ev.Action, trace.WithAttributes(
			attribute.String("audit.type", ev.Type),
			attribute.String("audit.actor", ev.Actor),
			attribute.String("audit.status", ev.Status),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	line := a.out.Log().
		Time("timestamp", time.Now()).
		Str("type", ev.Type).
		Str("action", ev.Action).
		Str("actor", ev.Actor).
		Str("status", ev.Status)
	if traceID != "" {
		line = line.Str("trace_id", traceID)
	}
	if len(ev.Metadata) > 0 {
		line = line.Fields(map[string]interface{}{"metadata": ev.Metadata})
	}
	line.Send()
}

// Close closes the underlying file. Stderr is never closed.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer == nil || a.closer == os.Stderr {
		return nil
	}
	c := a.closer
	a.closer = nil
	return c.Close()
}

// RecordSessionAudit records an open, close or expiry of an AI channel.
func RecordSessionAudit(ctx context.Context, action, actor, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditSession,
		Actor:    actor,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}

// RecordConfigAudit records a runtime configuration change such as a
// prompt reload.
func RecordConfigAudit(ctx context.Context, action, actor string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     AuditConfig,
		Actor:    actor,
		Action:   action,
		Status:   "success",
		Metadata: metadata,
	})
}
