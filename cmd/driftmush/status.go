// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// ProcessStatus holds the probed state of a running core process.
type ProcessStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	Error   string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	metricsAddr string
	jsonOutput  bool
}

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running DriftMUSH core",
		Long:  `Probe the health endpoints of a running core process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics-addr", defaultMetricsAddr, "metrics/health HTTP address of the core")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus probes the core's health endpoints and prints the result.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := probeStatus(cmd.Context(), cfg.metricsAddr)

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	if !status.Running {
		cmd.Printf("core at %s: not running (%s)\n", status.Addr, status.Error)
		return nil
	}
	readiness := "not ready"
	if status.Ready {
		readiness = "ready"
	}
	cmd.Printf("core at %s: running, %s\n", status.Addr, readiness)
	return nil
}

// probeStatus checks liveness and readiness over HTTP.
func probeStatus(ctx context.Context, addr string) ProcessStatus {
	status := ProcessStatus{Addr: addr}
	client := &http.Client{Timeout: 2 * time.Second}

	live, err := probe(ctx, client, "http://"+addr+"/healthz/liveness")
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Running = live

	ready, err := probe(ctx, client, "http://"+addr+"/healthz/readiness")
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Ready = ready
	return status
}

func probe(ctx context.Context, client *http.Client, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body close error is not actionable
	return resp.StatusCode == http.StatusOK, nil
}
