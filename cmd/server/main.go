// Package main runs the backtesting service: a gin REST API plus a gRPC endpoint with
// health and reflection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"strategylab/proto"
	"strategylab/services/arrowpipeline"
	"strategylab/services/cache"
	"strategylab/services/clickhouse"
	"strategylab/services/config"
	"strategylab/services/monitoring"
	"strategylab/services/runner"
)

// buildRunner wires the candle source, result store and cache selected by cfg. The
// returned func closes whatever was opened.
func buildRunner(ctx context.Context, cfg *config.Config, metrics *monitoring.Metrics, logger *zap.Logger) (*runner.Runner, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Close failed", zap.Error(err))
			}
		}
	}

	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithMetrics(metrics),
		runner.WithDefaults(cfg.Engine.Options()),
		runner.WithWorkers(cfg.Engine.MaxWorkers),
		runner.WithQueueSize(cfg.Engine.QueueSize),
	}

	var source runner.CandleSource = runner.CSVSource{Dir: cfg.Data.CSVDir}
	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.Open(ctx, cfg.ClickHouse.Config, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create ClickHouse client: %w", err)
		}
		closers = append(closers, ch.Close)
		if err := ch.EnsureSchema(ctx); err != nil {
			return nil, cleanup, fmt.Errorf("failed to create ClickHouse schema: %w", err)
		}
		source = runner.ClickHouseSource{Client: ch}
		opts = append(opts, runner.WithStore(ch))
	} else {
		logger.Info("ClickHouse disabled, reading candles from CSV", zap.String("dir", cfg.Data.CSVDir))
	}
	breaker := runner.NewBreakerSource(source, runner.BreakerConfig{Name: "candles"}, metrics, logger)

	if cfg.Redis.Enabled {
		rc, err := cache.New(cfg.Redis.Config, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to create result cache: %w", err)
		}
		closers = append(closers, rc.Close)
		opts = append(opts, runner.WithCache(rc))
	}
	return runner.New(breaker, opts...), cleanup, nil
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Environment == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtesting service",
		zap.String("version", version),
		zap.String("environment", cfg.Environment),
	)

	metrics, err := monitoring.NewMetrics(cfg.Monitoring)
	if err != nil {
		logger.Fatal("Failed to create monitoring", zap.Error(err))
	}
	pipeline, err := arrowpipeline.NewPipeline(cfg.Arrow, logger)
	if err != nil {
		logger.Fatal("Failed to create Arrow pipeline", zap.Error(err))
	}

	ctx := context.Background()
	r, cleanup, err := buildRunner(ctx, cfg, metrics, logger)
	if err != nil {
		cleanup()
		logger.Fatal("Failed to create backtest runner", zap.Error(err))
	}
	defer cleanup()

	service := NewBacktestService(r, runner.NewPlanner(0, cfg.Engine.MaxWorkers), pipeline, metrics, logger, cfg.Server.RequestTimeout)

	// Setup gRPC server
	grpcServer := grpc.NewServer()
	proto.RegisterBacktestServiceServer(grpcServer, service)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(proto.BacktestService_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	// Setup HTTP server
	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpRouter := gin.New()
	httpRouter.Use(gin.Recovery())
	service.setupHTTPRoutes(httpRouter)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort), Handler: httpRouter}

	// Start servers
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}

		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("Servers stopped")
}
