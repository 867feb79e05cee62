package monitoring

import (
	"context"
	"time"

	"ndilive/internal/core/ports"
	"ndilive/internal/core/services"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck pings the source directory's redis.
func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddTransportCheck verifies the media transport can be initialized.
func (h *HealthChecker) AddTransportCheck(transport ports.Transport, interval, timeout time.Duration) {
	h.AddCheck("transport", func(ctx context.Context) (bool, error) {
		if err := transport.Initialize(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddDiscoveryCheck verifies the shared discovery monitor is running.
func (h *HealthChecker) AddDiscoveryCheck(registry *services.DiscoveryRegistry, interval, timeout time.Duration) {
	h.AddCheck("discovery", func(ctx context.Context) (bool, error) {
		if _, err := registry.Shared(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// IsReady runs every check now and reports whether all of them pass.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}
