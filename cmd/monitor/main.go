package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ndilive/internal/core/services"
	httphandlers "ndilive/internal/handlers/http"
	"ndilive/internal/infrastructure/monitoring"
	"ndilive/internal/infrastructure/ndi"
	"ndilive/internal/infrastructure/repositories"
	"ndilive/internal/infrastructure/stream"
	"ndilive/pkg/config"
	"ndilive/pkg/logger"
	"ndilive/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

var version = "dev"

var (
	flagConfig   string
	flagSimulate bool
	flagLogLevel string
	flagHelp     bool
	flagVersion  bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "Configuration file (default: first of configs/config.yaml, config.yaml)")
	flag.BoolVarP(&flagSimulate, "simulate", "s", false, "Use the simulated transport instead of the NDI SDK")
	flag.StringVarP(&flagLogLevel, "log-level", "l", "", "Override logging.level")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

func loadConfig() (*config.Config, string, error) {
	if flagConfig != "" {
		cfg, err := config.Load(flagConfig)
		return cfg, flagConfig, err
	}

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			return cfg, path, err
		}
	}
	cfg, err := config.Load("")
	return cfg, "", err
}

func main() {
	flag.Parse()
	if flagHelp {
		fmt.Fprintln(os.Stderr, "Usage: monitor [OPTION]...")
		flag.PrintDefaults()
		return
	}
	if flagVersion {
		fmt.Printf("ndilive monitor %s (NDI %s)\n", version, ndi.Version())
		return
	}

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if flagSimulate {
		cfg.NDI.Simulate = true
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if cfgPath != "" {
		log.Infow("loaded config", "path", cfgPath)
	}

	if err := run(cfg, zapLogger); err != nil {
		log.Fatalw("monitor failed", "error", err)
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "ndilive-monitor",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("tracer shutdown failed", "error", err)
		}
	}()

	transport := ndi.NewTransport(cfg, log)
	if err := transport.Initialize(); err != nil {
		return fmt.Errorf("initialize transport (use --simulate without the NDI SDK): %w", err)
	}
	defer transport.Destroy()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewPrometheusCollector(reg)

	instance := instanceID()
	repoFactory := repositories.NewRepositoryFactory(ctx, cfg, instance, log)
	defer repoFactory.Close()
	directory := repoFactory.CreateSourceDirectory()

	discovery := services.NewDiscoveryRegistry(transport, monitorOptions(cfg, metrics, log))
	defer discovery.Close()
	discovery.AddObserver(directory)
	if runner, ok := directory.(interface{ Run(context.Context) }); ok {
		go runner.Run(ctx)
	}
	if _, err := discovery.Shared(); err != nil {
		log.Warnw("shared discovery not started, retrying on first use", "error", err)
	}

	popts, err := playerOptions(cfg, metrics, log)
	if err != nil {
		return err
	}
	players := services.NewPlayerRegistry(transport, discovery, popts)
	defer players.Close()

	streamer := stream.NewFrameStreamer(players, streamOptions(cfg, metrics, log))

	health := monitoring.NewHealthChecker()
	interval := cfg.Monitoring.HealthCheckInterval
	health.AddTransportCheck(transport, interval, 5*time.Second)
	health.AddDiscoveryCheck(discovery, interval, 5*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, interval, 5*time.Second)
	}
	health.StartBackgroundChecks(ctx)

	playerHandler := httphandlers.NewPlayerHandler(players, cfg.Player.ConnectTimeout, log)
	defer playerHandler.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	var metricsHandler http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	router := httphandlers.NewRouter(httphandlers.RouterConfig{
		Config:  cfg,
		Logger:  zapLogger,
		Sources: httphandlers.NewSourceHandler(discovery, directory, log),
		Players: playerHandler,
		Frames:  streamer,
		Health:  health,
		Metrics: metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting ndilive monitor", "address", cfg.Server.Address, "instance", instance, "simulate", cfg.NDI.Simulate)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// hijacked websocket connections are not tracked by Shutdown
	streamer.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
	}

	log.Info("ndilive monitor stopped")
	return nil
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ndilive"
	}
	return host + "-" + uuid.NewString()[:8]
}
