package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path"
	"strconv"
	"syscall"
	"time"

	"github.com/ekisa-team/rkbackend/internal/config"
	"github.com/ekisa-team/rkbackend/internal/env"
	"github.com/ekisa-team/rkbackend/internal/envvar"
	"github.com/ekisa-team/rkbackend/internal/logger"
	grpcserver "github.com/ekisa-team/rkbackend/internal/server/grpc"
	httpserver "github.com/ekisa-team/rkbackend/internal/server/http"
	"github.com/ekisa-team/rkbackend/internal/service"

	_ "github.com/ekisa-team/rkbackend/internal/device/rknn"
	_ "github.com/ekisa-team/rkbackend/internal/device/sim"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		flagHTTPPort   = flag.Int("http-port", 0, "HTTP port to listen on (default 8000)")
		flagGRPCPort   = flag.Int("grpc-port", 0, "gRPC port to listen on (default 8001)")
		flagConfigPath = flag.String("config", path.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath = flag.String("schema", "", "Path to schema file (default: embedded schema)")
		flagLogFile    = flag.String("log-file", "", "Also write JSON logs to this file, rotated")
	)
	flag.Parse()

	environment := env.FromEnv()

	opts := []logger.Option{logger.WithLevel(logger.ParseLevel(os.Getenv(envvar.RKBackendLogLevel)))}
	if *flagLogFile != "" {
		opts = append(opts, logger.WithLogToFile(true), logger.WithLogFile(*flagLogFile))
	}
	log := logger.New(environment, opts...)
	slog.SetDefault(log)

	if err := run(log, *flagConfigPath, *flagSchemaPath, *flagHTTPPort, *flagGRPCPort); err != nil {
		log.Error("rkbackend stopped", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, configPath, schemaPath string, httpPort, grpcPort int) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grpcSrv := grpcserver.New(log)
	events := httpserver.NewBroadcaster(log)

	manager := service.NewManager(log,
		service.WithStatusHook(grpcSrv.SetModelStatus),
		service.WithStatusHook(events.Publish),
	)
	defer func() {
		if err := manager.Close(); err != nil {
			log.Error("Failed to unload models", "error", err)
		}
	}()

	watcher, err := config.NewWatcher(configPath, schemaPath, log, func(cfg *config.Config, err error) {
		if err != nil {
			log.Error("Failed to reload config", "error", err)
			return
		}
		if err := manager.LoadModelsFromConfig(ctx, cfg); err != nil {
			log.Error("Failed to load models from config", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	cfg := watcher.Snapshot()
	log.Info("Config loaded successfully", "config", configPath, "models", len(cfg.Models))

	// Failed models are reported and marked; the server still starts.
	if err := manager.LoadModelsFromConfig(ctx, cfg); err != nil {
		log.Error("Failed to load models from config", "error", err)
	}

	inference := service.NewInference(manager, log)

	httpAddr := fmt.Sprintf(":%d", resolvePort(httpPort, envvar.RKBackendHTTPPort, cfg.Server.HTTPPort, config.DefaultHTTPPort()))
	httpSrv := httpserver.New(httpAddr, version, manager, inference, events, log)

	grpcAddr := fmt.Sprintf(":%d", resolvePort(grpcPort, envvar.RKBackendGRPCPort, cfg.Server.GRPCPort, config.DefaultGRPCPort()))
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	errc := make(chan error, 2)
	go func() { errc <- httpSrv.ListenAndServe() }()
	go func() { errc <- grpcSrv.Serve(lis) }()

	log.Info("rkbackend started", "version", version, "http", httpAddr, "grpc", grpcAddr)

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-errc:
		log.Error("Server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", "error", err)
	}
	grpcSrv.Stop()

	return err
}

// resolvePort returns the port to listen on.
// Precedence:
// 1. Command line flag.
// 2. Environment variable.
// 3. Config file.
// 4. Default.
func resolvePort(flagValue int, envName string, cfgValue, def int) int {
	if flagValue > 0 {
		return flagValue
	}
	if v, err := strconv.Atoi(os.Getenv(envName)); err == nil && v > 0 {
		return v
	}
	if cfgValue > 0 {
		return cfgValue
	}
	return def
}
