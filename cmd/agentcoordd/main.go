package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentcoord/core/internal/corelog"
	"github.com/agentcoord/core/pkg/approval"
	"github.com/agentcoord/core/pkg/audit"
	"github.com/agentcoord/core/pkg/autoscaler"
	"github.com/agentcoord/core/pkg/config"
	"github.com/agentcoord/core/pkg/filelock"
	"github.com/agentcoord/core/pkg/kv"
	"github.com/agentcoord/core/pkg/kv/localkv"
	"github.com/agentcoord/core/pkg/kv/raftkv"
	"github.com/agentcoord/core/pkg/metrics"
	"github.com/agentcoord/core/pkg/queue"
	"github.com/agentcoord/core/pkg/registry"
	"github.com/agentcoord/core/pkg/spawner"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "agentcoordd",
	Short:   "agentcoordd - coordination core process entrypoint",
	Long:    `agentcoordd starts a coordination core: a KV backend (networked or file-backed), the component set that reads and writes through it, and the metrics/health endpoints that let an operator watch it.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("agentcoordd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a coordination core process",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().String("config", "", "Path to a YAML config file (optional; env vars still take precedence)")
	startCmd.Flags().String("kv-mode", "", "Override KV backend mode: auto, networked, local")
	startCmd.Flags().String("kv-addr", "", "Override networked KV backend bind address")
	startCmd.Flags().String("data-dir", "", "Override data directory for the networked backend's Raft/bbolt state")
	startCmd.Flags().String("fallback-dir", "", "Override data directory for the file-backed fallback backend")
	startCmd.Flags().String("node-id", "node-1", "Node ID for the networked backend's single-node Raft cluster")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Bind address for the metrics/health HTTP endpoint")
	startCmd.Flags().Bool("autoscaler", false, "Enable the built-in auto-scaler for local-mode workers")
	startCmd.Flags().Int("autoscaler-min", 0, "Auto-scaler minimum worker count")
	startCmd.Flags().Int("autoscaler-max", 4, "Auto-scaler maximum worker count")
	startCmd.Flags().Int("autoscaler-tasks-per-worker", 5, "Auto-scaler tasks-per-worker ratio")
	startCmd.Flags().String("worker-command", "", "Local-mode worker command the auto-scaler spawns (required if --autoscaler)")
}

func runStart(cmd *cobra.Command, args []string) error {
	initLogging(cmd)
	logger := corelog.WithComponent("agentcoordd")

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.FromEnv(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, closeBackend, err := openBackend(ctx, cmd, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open KV backend: %w", err)
	}
	defer closeBackend()

	auditLog := audit.New(backend)
	q := queue.New(backend, auditLog)
	reg := registry.New(backend, auditLog, registry.WithHungThreshold(cfg.HungThreshold))
	locks := filelock.New(backend)
	approvals := approval.New(backend, auditLog)

	metrics.SetVersion(Version)
	metrics.RegisterComponent("kv_backend", true, "ready")

	collector := metrics.NewCollector(q, reg, locks, approvals, 15*time.Second)
	collector.Start(ctx)
	defer collector.Stop()

	go q.RunRetrySweeper(ctx, cfg.RetrySweepInterval)
	go q.RunReclamationSweeper(ctx, reg, cfg.ReclaimSweepInterval)

	var scaler *autoscaler.Scaler
	if enabled, _ := cmd.Flags().GetBool("autoscaler"); enabled {
		scaler, err = startAutoscaler(ctx, cmd, q, logger)
		if err != nil {
			return fmt.Errorf("failed to start auto-scaler: %w", err)
		}
	}
	_ = scaler // lifetime is the ctx cancellation below; nothing further to stop explicitly

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics and health endpoints listening")
	logger.Info().Msg("agentcoordd running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("metrics server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown error")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func initLogging(cmd *cobra.Command) {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	corelog.Init(corelog.Config{
		Level:      corelog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("kv-mode"); v != "" {
		cfg.KVMode = config.KVMode(v)
	}
	if v, _ := cmd.Flags().GetString("kv-addr"); v != "" {
		cfg.KVAddr = v
	}
	if v, _ := cmd.Flags().GetString("fallback-dir"); v != "" {
		cfg.FallbackDir = v
	}
}

// openBackend opens the KV backend named by cfg.KVMode, returning it
// and a close func. KVModeAuto tries the networked backend first and
// falls back to the local, file-backed one if it cannot be opened —
// the same "prefer the networked store, degrade to local" precedence
// spec §6.3 describes for a single agent working offline.
func openBackend(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger) (kv.Backend, func(), error) {
	nodeID, _ := cmd.Flags().GetString("node-id")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = cfg.FallbackDir
	}

	openNetworked := func() (kv.Backend, func(), error) {
		rk, err := raftkv.Open(raftkv.Config{
			NodeID:   nodeID,
			BindAddr: cfg.KVAddr,
			DataDir:  dataDir,
		})
		if err != nil {
			return nil, nil, err
		}
		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
		defer waitCancel()
		if err := rk.WaitForLeader(waitCtx); err != nil {
			rk.Close()
			return nil, nil, err
		}
		return rk, func() { rk.Close() }, nil
	}

	openLocal := func() (kv.Backend, func(), error) {
		store, err := localkv.Open(cfg.FallbackDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	switch cfg.KVMode {
	case config.KVModeNetworked:
		return openNetworked()
	case config.KVModeLocal:
		return openLocal()
	default:
		backend, closeFn, err := openNetworked()
		if err == nil {
			return backend, closeFn, nil
		}
		return openLocal()
	}
}

func startAutoscaler(ctx context.Context, cmd *cobra.Command, q *queue.Queue, logger zerolog.Logger) (*autoscaler.Scaler, error) {
	workerCmd, _ := cmd.Flags().GetString("worker-command")
	if workerCmd == "" {
		return nil, fmt.Errorf("--worker-command is required when --autoscaler is set")
	}
	minWorkers, _ := cmd.Flags().GetInt("autoscaler-min")
	maxWorkers, _ := cmd.Flags().GetInt("autoscaler-max")
	tasksPerWorker, _ := cmd.Flags().GetInt("autoscaler-tasks-per-worker")

	sp := spawner.New(q, "")
	scaler := autoscaler.New(q, sp, autoscaler.Config{
		MinWorkers:     minWorkers,
		MaxWorkers:     maxWorkers,
		TasksPerWorker: tasksPerWorker,
		Template: spawner.SpawnRequest{
			Name:    "worker",
			Mode:    spawner.ModeLocal,
			Command: workerCmd,
		},
	})
	go scaler.Run(ctx)
	return scaler, nil
}
