package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := NewMessageContext(context.Background(), "guild-1", "channel-1", "user-1")
	ctx = WithConversationID(ctx, "conv-1")

	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id"`, `"guild_id":"guild-1"`, `"channel_id":"channel-1"`, `"user_id":"user-1"`, `"conversation_id":"conv-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %s, got %s", want, out)
		}
	}
}

func TestLoggerFromEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("Expected no trace fields, got %s", buf.String())
	}
}

func TestMergeContext(t *testing.T) {
	source := WithTraceID(context.Background(), "trace-src")
	source = WithChannelID(source, "channel-src")

	target := WithChannelID(context.Background(), "channel-target")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "trace-src" {
		t.Error("Trace ID not merged")
	}
	if GetChannelID(merged) != "channel-target" {
		t.Error("Existing target value was overwritten")
	}
}

func TestMergeContextKeepsCancellation(t *testing.T) {
	target, cancel := context.WithCancel(context.Background())
	merged := MergeContext(target, WithTraceID(context.Background(), "t"))

	cancel()
	if merged.Err() == nil {
		t.Error("Expected merged context to observe target cancellation")
	}
}

func TestCloneContext(t *testing.T) {
	parent, cancel := context.WithCancel(WithTraceID(context.Background(), "trace-1"))
	clone := CloneContext(parent)
	cancel()

	if GetTraceID(clone) != "trace-1" {
		t.Error("Trace ID not cloned")
	}
	if clone.Err() != nil {
		t.Error("Clone should not inherit cancellation")
	}
}
