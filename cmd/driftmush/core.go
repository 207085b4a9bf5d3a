// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DriftMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/driftmush/driftmush/internal/core"
	"github.com/driftmush/driftmush/internal/gateway"
	"github.com/driftmush/driftmush/internal/logging"
	"github.com/driftmush/driftmush/internal/observability"
	"github.com/driftmush/driftmush/internal/plugin"
	"github.com/driftmush/driftmush/internal/xdg"

	// In-tree plugins register their constructors at init time.
	_ "github.com/driftmush/driftmush/plugins/chat"
	_ "github.com/driftmush/driftmush/plugins/permission"
	_ "github.com/driftmush/driftmush/plugins/presence"
)

// Default values for core command flags.
const (
	defaultMetricsAddr     = "127.0.0.1:9100"
	defaultLogFormat       = "json"
	defaultShutdownTimeout = 10 * time.Second
)

// coreConfig holds configuration for the core command.
type coreConfig struct {
	PluginsDir  string `koanf:"plugins-dir"`
	MetricsAddr string `koanf:"metrics-addr"`
	LogFormat   string `koanf:"log-format"`
}

// Validate checks that the configuration is valid, filling in the XDG
// default for the plugins directory.
func (cfg *coreConfig) Validate() error {
	if cfg.PluginsDir == "" {
		cfg.PluginsDir = xdg.PluginsDir()
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	return nil
}

// loadCoreConfig merges config sources: flag defaults, then the config file
// (if given), then explicitly set flags.
func loadCoreConfig(flags *pflag.FlagSet, configFile string) (*coreConfig, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(kfile.Provider(configFile), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	cfg := &coreConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewCoreCmd creates the core subcommand.
func NewCoreCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "core",
		Short: "Start the server core (plugin manager, dispatcher)",
		Long: `Start the server core: discover plugin manifests, construct
plugins in dependency order, seal the capability registry, and dispatch
connection events for the server's lifetime.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCoreConfig(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			return runCore(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.Flags().String("plugins-dir", "", "directory holding plugin manifests (default: XDG_DATA_HOME/driftmush/plugins)")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")

	return cmd
}

// runCore runs the core process until interrupted.
func runCore(ctx context.Context, cfg *coreConfig) error {
	logging.SetDefault("core", version, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []plugin.ManagerOption{plugin.WithLogger(slog.Default())}

	var obsErrs <-chan error
	ready := &readiness{}
	if cfg.MetricsAddr != "" {
		obs := observability.NewServer(cfg.MetricsAddr, ready.check)
		opts = append(opts, plugin.WithMetricsRegisterer(obs.Registerer()))

		errCh, err := obs.Start()
		if err != nil {
			return err
		}
		obsErrs = errCh
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				slog.Error("failed to stop observability server", "error", err)
			}
		}()
	}

	manager := plugin.NewManager(cfg.PluginsDir, opts...)
	ready.set(manager)
	return serveCore(ctx, manager, obsErrs)
}

// serveCore runs startup and then blocks until shutdown.
func serveCore(ctx context.Context, manager *plugin.Manager, obsErrs <-chan error) error {
	registry, err := manager.Startup(ctx)
	if err != nil {
		return err
	}

	dispatcher := manager.Dispatcher()
	sessions := core.NewSessionManager()
	bcast := core.NewBroadcaster()
	connector := gateway.NewConnector(sessions, bcast, dispatcher, slog.Default())
	_ = connector // handed to the transport layer, which is external to this core

	slog.Info("core ready",
		"plugins", registry.Len(),
		"phase", manager.Phase().String())

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return nil
	case err, ok := <-obsErrs:
		if ok && err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	}
}

// readiness defers the readiness answer until the manager exists, so the
// observability server can start before plugin startup begins.
type readiness struct {
	manager atomic.Pointer[plugin.Manager]
}

func (r *readiness) set(m *plugin.Manager) { r.manager.Store(m) }

func (r *readiness) check() bool {
	m := r.manager.Load()
	return m != nil && m.Ready()
}
