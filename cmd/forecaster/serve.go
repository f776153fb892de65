package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/foresight/cmd/forecaster/config"
	"github.com/HatiCode/foresight/cmd/forecaster/router"
	"github.com/HatiCode/foresight/pkg/httpx"
)

// healthService is the gRPC health service name reflecting cycle outcome.
const healthService = "foresight.Forecaster"

// cronLogger routes cron's own logging to slog.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

// scheduler runs the engine on a cron schedule and reports the outcome to
// the gRPC health server.
type scheduler struct {
	engine *Engine
	health *health.Server
	log    *slog.Logger
	ctx    context.Context
}

func (s *scheduler) Run() {
	report, err := s.engine.RunCycle(s.ctx)
	if err != nil {
		s.log.Error("cycle finished with failures", "error", err)
	}
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if report == nil || report.Status == CycleFailed {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	if s.health != nil {
		s.health.SetServingStatus(healthService, status)
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	serverTLS, err := cfg.TLS.ServerConfig()
	if err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	healthServer := health.NewServer()
	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		var opts []grpc.ServerOption
		if serverTLS != nil {
			opts = append(opts, grpc.Creds(credentials.NewTLS(serverTLS)))
		}
		grpcServer = grpc.NewServer(opts...)
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCListen, err)
		}
		go func() {
			log.Info("grpc health server listening", "address", cfg.GRPCListen, "tls", serverTLS != nil)
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("grpc server failed", "error", err)
			}
		}()
	}

	job := &scheduler{engine: a.engine, health: healthServer, log: log, ctx: ctx}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddJob(cfg.Schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	c.Start()
	log.Info("scheduler started", "schedule", cfg.Schedule, "next", c.Entries()[0].Next)
	if cfg.RunOnStart {
		go job.Run()
	}

	checks := []func(context.Context) error{}
	if p, ok := a.sink.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, p.Ping)
	}
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, p.Ping)
	}
	mux := router.SetupRoutes(router.Deps{
		Store:      a.store,
		Querier:    a.sink,
		StaleAfter: cfg.StaleAfter,
		Checks:     checks,
		Gatherer:   a.registry,
		Logger:     log,
	})
	handler := httpx.Chain(mux, httpx.RecoveryMiddleware(log), httpx.LoggingMiddleware(log))
	httpServer := httpx.NewServer(cfg.Listen, handler, serverTLS, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	healthServer.Shutdown()
	cancel()
	<-c.Stop().Done()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
