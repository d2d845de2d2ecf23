// Package cli builds the histeq command: a single binary that runs as
// either the coordinator (given a directory of images) or a worker
// (given --client), following the same cobra/YAML-config/signal-
// handling shape the rest of this codebase's tooling uses.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/histeq/cluster/internal/metrics"
	"github.com/histeq/cluster/internal/server"
	"github.com/histeq/cluster/internal/tracing"
	"github.com/histeq/cluster/internal/worker"
)

// Config holds every tunable of a run, loaded from an optional YAML
// file. Any field left unset in the file keeps its defaultConfig value;
// command-line flags, where given, override the file.
type Config struct {
	Server struct {
		WorkAddr               string `yaml:"work_addr"`
		ControlAddr            string `yaml:"control_addr"`
		MaxWorkerQueue         int    `yaml:"max_worker_queue"`
		MaxHeartbeatIntervalMs int    `yaml:"max_heartbeat_interval_ms"`
	} `yaml:"server"`

	Worker struct {
		Threads         int  `yaml:"threads"`
		ConnectAttempts uint `yaml:"connect_attempts"`
	} `yaml:"worker"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Tracing struct {
		ServerAddress string `yaml:"server_address"`
		Secret        string `yaml:"secret"`
	} `yaml:"tracing"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Server.WorkAddr = "tcp://0.0.0.0:42069"
	cfg.Server.ControlAddr = "tcp://0.0.0.0:42070"
	cfg.Server.MaxWorkerQueue = 32
	cfg.Server.MaxHeartbeatIntervalMs = 5000
	cfg.Worker.Threads = 4
	cfg.Worker.ConnectAttempts = 5
	cfg.Metrics.Port = 9090
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// BuildCLI builds the histeq root command. It takes no subcommands:
// called with no arguments it prints usage and fails; called with
// --client it runs as a worker; otherwise its one positional argument
// is the directory of images to process as the coordinator.
func BuildCLI() *cobra.Command {
	var (
		configPath  string
		client      bool
		persist     bool
		workAddr    string
		controlAddr string
		threads     int
		metricsPort int
		tracerAddr  string
	)

	cmd := &cobra.Command{
		Use:     "histeq [directory]",
		Short:   "Distributed histogram equalisation over a directory of images",
		Version: "1.0.0",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if workAddr != "" {
				cfg.Server.WorkAddr = workAddr
			}
			if controlAddr != "" {
				cfg.Server.ControlAddr = controlAddr
			}
			if threads > 0 {
				cfg.Worker.Threads = threads
			}
			if metricsPort > 0 {
				cfg.Metrics.Port = metricsPort
				cfg.Metrics.Enabled = true
			}
			if tracerAddr != "" {
				cfg.Tracing.ServerAddress = tracerAddr
			}

			if client {
				return runWorker(cfg, persist)
			}

			if len(args) != 1 {
				_ = cmd.Usage()
				return fmt.Errorf("histeq: exactly one directory argument is required in coordinator mode")
			}
			return runServer(cfg, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional YAML config file overriding these flags' defaults")
	cmd.Flags().BoolVar(&client, "client", false, "run as a worker instead of the coordinator")
	cmd.Flags().BoolVar(&persist, "persist", false, "worker mode only: reconnect and run again after the server says goodbye, instead of exiting")
	cmd.Flags().StringVar(&workAddr, "work-addr", "", "coordinator's work socket address (tcp://host:port)")
	cmd.Flags().StringVar(&controlAddr, "control-addr", "", "coordinator's control socket address (tcp://host:port)")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker mode only: number of job goroutines")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "coordinator mode only: serve Prometheus /metrics on this port")
	cmd.Flags().StringVar(&tracerAddr, "tracer-addr", "", "DistributedClocks tracing server address")

	return cmd
}

func runServer(cfg Config, dir string) error {
	reg := prometheus.NewRegistry()
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(reg)
		go func() {
			slog.Info("metrics: serving /metrics", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port, reg); err != nil {
				slog.Error("metrics: server exited", "error", err)
			}
		}()
	}

	tracer := tracing.New(tracing.Config{
		ServerAddress:  cfg.Tracing.ServerAddress,
		TracerIdentity: "server",
		Secret:         []byte(cfg.Tracing.Secret),
	})

	srv := server.New(server.Config{
		WorkAddr:          cfg.Server.WorkAddr,
		ControlAddr:       cfg.Server.ControlAddr,
		MaxWorkerQueue:    cfg.Server.MaxWorkerQueue,
		HeartbeatInterval: time.Duration(cfg.Server.MaxHeartbeatIntervalMs) * time.Millisecond,
		Metrics:           collector,
		Tracer:            tracer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("histeq: processing directory", "dir", dir)
	if err := srv.Serve(ctx, dir); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("histeq: run complete")
	return nil
}

func runWorker(cfg Config, persist bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer := tracing.New(tracing.Config{
		ServerAddress:  cfg.Tracing.ServerAddress,
		TracerIdentity: "worker",
		Secret:         []byte(cfg.Tracing.Secret),
	})

	workerCfg := worker.Config{
		WorkAddr:          cfg.Server.WorkAddr,
		ControlAddr:       cfg.Server.ControlAddr,
		Threads:           cfg.Worker.Threads,
		HeartbeatInterval: time.Duration(cfg.Server.MaxHeartbeatIntervalMs) * time.Millisecond,
		ConnectAttempts:   cfg.Worker.ConnectAttempts,
		Tracer:            tracer,
	}

	for {
		rt := worker.NewRuntime(workerCfg)
		slog.Info("histeq: connecting to coordinator")
		if err := rt.Run(ctx); err != nil {
			return fmt.Errorf("worker: %w", err)
		}
		if !persist || ctx.Err() != nil {
			slog.Info("histeq: coordinator said goodbye, exiting")
			return nil
		}
		slog.Info("histeq: coordinator said goodbye, reconnecting", "persist", true)
	}
}
