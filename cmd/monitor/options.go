package main

import (
	"fmt"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"
	"ndilive/internal/core/services"
	"ndilive/internal/infrastructure/ndi"
	"ndilive/internal/infrastructure/stream"
	"ndilive/pkg/config"

	"go.uber.org/zap"
)

func bufferPolicy(cfg *config.Config) domain.BufferPolicy {
	return domain.BufferPolicy{
		Video:    cfg.Player.Buffer.Video,
		Audio:    cfg.Player.Buffer.Audio,
		Metadata: cfg.Player.Buffer.Metadata,
	}
}

func discoveryOptions(cfg *config.Config, log *zap.SugaredLogger) services.DiscoveryOptions {
	return services.DiscoveryOptions{
		Find:         ndi.FindOptionsFromConfig(cfg),
		PollInterval: cfg.Discovery.PollInterval,
		Logger:       log,
	}
}

func monitorOptions(cfg *config.Config, metrics ports.Metrics, log *zap.SugaredLogger) services.MonitorOptions {
	return services.MonitorOptions{
		Discovery:       discoveryOptions(cfg, log),
		RefreshInterval: cfg.Discovery.RefreshInterval,
		Metrics:         metrics,
		Logger:          log,
	}
}

func playerOptions(cfg *config.Config, metrics ports.Metrics, log *zap.SugaredLogger) (services.PlayerOptions, error) {
	colorFormat, err := ports.ParseColorFormat(cfg.NDI.ColorFormat)
	if err != nil {
		return services.PlayerOptions{}, fmt.Errorf("ndi.color_format: %w", err)
	}
	bandwidth, err := ports.ParseBandwidth(cfg.NDI.Bandwidth)
	if err != nil {
		return services.PlayerOptions{}, fmt.Errorf("ndi.bandwidth: %w", err)
	}

	opts := services.DefaultPlayerOptions()
	opts.CaptureTimeout = cfg.Player.CaptureTimeout
	opts.BufferPolicy = bufferPolicy(cfg)
	opts.ReleaseIdleReceiver = cfg.Player.ReleaseIdleReceiver
	opts.Receiver = services.ReceiverOptions{
		ColorFormat:      colorFormat,
		Bandwidth:        bandwidth,
		AllowVideoFields: cfg.NDI.AllowVideoFields,
		Name:             cfg.NDI.ReceiverName,
		Discovery:        discoveryOptions(cfg, log),
		Logger:           log,
	}
	opts.Metrics = metrics
	opts.Logger = log
	return opts, nil
}

func streamOptions(cfg *config.Config, clients stream.ClientObserver, log *zap.SugaredLogger) stream.Options {
	return stream.Options{
		PingInterval:   cfg.Stream.PingInterval,
		PongTimeout:    cfg.Stream.PongTimeout,
		WriteTimeout:   cfg.Stream.WriteTimeout,
		MaxVideoFPS:    cfg.Stream.MaxVideoFPS,
		AllowedOrigins: cfg.Stream.AllowedOrigins,
		BufferPolicy:   bufferPolicy(cfg),
		Clients:        clients,
		Logger:         log,
	}
}
