package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ai-agent/internal/app"
	"ai-agent/internal/config"
	"ai-agent/internal/logger"
	"ai-agent/internal/supervisor"
	"ai-agent/internal/telemetry"
	"ai-agent/internal/transport/rest"
	"ai-agent/internal/transport/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST and gRPC listeners",
	Long: `Run the REST and gRPC listeners side by side.

If either listener stops, the other is shut down and the process exits.
Configuration is read from the environment and an optional .env file.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.ServiceName, cfg.Environment)

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName, version, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", "err", err)
		}
	}()

	deps, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn("failed to close dependencies", "err", err)
		}
	}()

	restServer := rest.NewServer(deps.Orchestrator, log, deps.Registry, rest.Options{
		Addr:           cfg.RESTAddr(),
		RequestTimeout: cfg.RequestTimeout,
		ShutdownGrace:  cfg.ShutdownGrace,
		CORSOrigins:    cfg.CORSOrigins,
		ServiceName:    cfg.ServiceName,
		BackendURL:     deps.BackendURL,
	})
	rpcServer := rpc.NewServer(deps.Orchestrator, log, rpc.Options{
		Addr:           cfg.GRPCAddr(),
		RequestTimeout: cfg.RequestTimeout,
		ShutdownGrace:  cfg.ShutdownGrace,
	})

	log.Info("starting ai-agent", "version", version, "rest_addr", cfg.RESTAddr(), "grpc_addr", cfg.GRPCAddr())
	return supervisor.Run(ctx, log, restServer, rpcServer)
}
