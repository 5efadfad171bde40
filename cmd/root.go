// Package cmd wires the erpsync CLI.
package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/erpsync/internal/config"
	"github.com/marcus/erpsync/internal/gateway"
	"github.com/marcus/erpsync/internal/resilience"
	"github.com/marcus/erpsync/internal/spec"
	"github.com/marcus/erpsync/internal/store"
	"github.com/marcus/erpsync/internal/syncer"
)

var (
	version    string
	configPath string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "erpsync",
	Short: "Mirror accounting data from a Gateway into sqlite",
	Long: `erpsync replicates master and transaction data from an ERP Gateway
into a local sqlite database: full rebuilds, incremental change pulls,
multi-company queues, scheduling, and a restorable audit trail.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "config file")
	rootCmd.Version = version
}

func setupLogging() {
	cfg, err := config.Load(configPath)
	if err != nil {
		return
	}
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// app bundles the wired-up collaborators most commands need.
type app struct {
	cfg   *config.Config
	store *store.Store
	spec  *spec.Config
	gw    *gateway.Client
	sync  *syncer.Synchronizer
}

// openApp loads config, opens the store, bootstraps the schema, and
// builds the gateway client and synchronizer.
func openApp(incremental bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	tables, err := spec.Load(cfg.Sync.SpecFile, incremental)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Bootstrap(cfg.Database.SchemaFile, tables); err != nil {
		st.Close()
		return nil, err
	}

	exec := resilience.New(resilience.Config{
		RetryEnabled:     cfg.Retry.Enabled,
		MaxAttempts:      cfg.Retry.MaxAttempts,
		InitialDelay:     time.Duration(cfg.Retry.InitialDelay) * time.Second,
		Strategy:         cfg.Retry.Strategy,
		Multiplier:       cfg.Retry.BackoffMultiplier,
		MaxDelay:         time.Duration(cfg.Retry.MaxDelay) * time.Second,
		BreakerEnabled:   cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.CircuitBreaker.RecoveryTimeout) * time.Second,
		HalfOpenMax:      uint32(cfg.CircuitBreaker.HalfOpenMax),
		Retryable:        gateway.Retryable,
	})
	gw := gateway.New(cfg.Gateway.Server, cfg.Gateway.Port,
		time.Duration(cfg.Gateway.Timeout)*time.Second, exec)

	return &app{
		cfg:   cfg,
		store: st,
		spec:  tables,
		gw:    gw,
		sync:  syncer.New(cfg, tables, st, gw),
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

// printJSON renders machine-readable command output.
func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
