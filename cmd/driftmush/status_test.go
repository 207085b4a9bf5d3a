// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCore serves the health endpoints of a running core.
func fakeCore(t *testing.T, ready bool) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if ready {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestProbeStatus_ReadyCore(t *testing.T) {
	addr := fakeCore(t, true)

	status := probeStatus(context.Background(), addr)
	assert.True(t, status.Running)
	assert.True(t, status.Ready)
	assert.Empty(t, status.Error)
}

func TestProbeStatus_StartingCore(t *testing.T) {
	addr := fakeCore(t, false)

	status := probeStatus(context.Background(), addr)
	assert.True(t, status.Running)
	assert.False(t, status.Ready)
}

func TestProbeStatus_NoCore(t *testing.T) {
	status := probeStatus(context.Background(), "127.0.0.1:1")
	assert.False(t, status.Running)
	assert.NotEmpty(t, status.Error)
}

func TestStatusCommand_JSONOutput(t *testing.T) {
	addr := fakeCore(t, true)

	cmd := newStatusCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--metrics-addr", addr, "--json"})
	require.NoError(t, cmd.Execute())

	var status ProcessStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Equal(t, addr, status.Addr)
	assert.True(t, status.Running)
	assert.True(t, status.Ready)
}

func TestStatusCommand_TextOutput(t *testing.T) {
	addr := fakeCore(t, false)

	cmd := newStatusCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--metrics-addr", addr})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "running, not ready")
}
