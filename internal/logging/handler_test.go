// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftmush/driftmush/internal/logging"
)

func TestSetup_JSONIncludesServiceIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("core", "1.2.3", "json", &buf)

	logger.Info("hello", "key", "value")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "core", record["service"])
	assert.Equal(t, "1.2.3", record["version"])
	assert.Equal(t, "value", record["key"])
	assert.NotContains(t, record, "trace_id")
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("core", "1.2.3", "text", &buf)

	logger.Info("hello")

	out := buf.String()
	assert.True(t, strings.Contains(out, "msg=hello"))
	assert.True(t, strings.Contains(out, "service=core"))
}

func TestSetup_TraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("core", "1.2.3", "json", &buf)

	traceID := trace.TraceID{0x01}
	spanID := trace.SpanID{0x02}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, traceID.String(), record["trace_id"])
	assert.Equal(t, spanID.String(), record["span_id"])
}

func TestSetup_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("core", "1.2.3", "json", &buf)

	logger.With("plugin", "chat").WithGroup("dispatch").Info("sent", "outcome", "ok")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "chat", record["plugin"])
	group, ok := record["dispatch"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", group["outcome"])
}
