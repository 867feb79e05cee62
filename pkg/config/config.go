package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ndilive/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	NDI struct {
		// Simulate replaces the native SDK with the in-memory transport.
		Simulate         bool     `yaml:"simulate"`
		SimulatedSources []string `yaml:"simulated_sources"`
		Synthetic        bool     `yaml:"synthetic"`
		ReceiverName     string   `yaml:"receiver_name"`
		ColorFormat      string   `yaml:"color_format"`
		Bandwidth        string   `yaml:"bandwidth"`
		AllowVideoFields bool     `yaml:"allow_video_fields"`
	} `yaml:"ndi"`

	Discovery struct {
		ShowLocalSources bool          `yaml:"show_local_sources"`
		Groups           string        `yaml:"groups"`
		ExtraIPs         []string      `yaml:"extra_ips"`
		PollInterval     time.Duration `yaml:"poll_interval"`
		RefreshInterval  time.Duration `yaml:"refresh_interval"`
	} `yaml:"discovery"`

	Player struct {
		CaptureTimeout      time.Duration `yaml:"capture_timeout"`
		ReleaseIdleReceiver bool          `yaml:"release_idle_receiver"`
		ConnectTimeout      time.Duration `yaml:"connect_timeout"`
		Buffer              struct {
			Video    int `yaml:"video"`
			Audio    int `yaml:"audio"`
			Metadata int `yaml:"metadata"`
		} `yaml:"buffer"`
	} `yaml:"player"`

	Stream struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		MaxVideoFPS    float64       `yaml:"max_video_fps"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"stream"`

	Monitoring struct {
		PrometheusEnabled   bool          `yaml:"prometheus_enabled"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Address   string        `yaml:"address"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		PoolSize  int           `yaml:"pool_size"`
		KeyPrefix string        `yaml:"key_prefix"`
		TTL       time.Duration `yaml:"ttl"`
		// FailureThreshold consecutive failed directory calls stop redis
		// traffic for OpenTimeout.
		FailureThreshold int           `yaml:"failure_threshold"`
		OpenTimeout      time.Duration `yaml:"open_timeout"`
	} `yaml:"redis"`

	Auth struct {
		Enabled   bool   `yaml:"enabled"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Recording struct {
		Executable  string `yaml:"executable"`
		OutputDir   string `yaml:"output_dir"`
		NoThumbnail bool   `yaml:"no_thumbnail"`
		NoAutoChop  bool   `yaml:"no_auto_chop"`
		NoAutoStart bool   `yaml:"no_auto_start"`
	} `yaml:"recording"`
}

var (
	colorFormats = []string{"bgrx_bgra", "uyvy_bgra", "rgbx_rgba", "uyvy_rgba", "fastest", "best"}
	bandwidths   = []string{"metadata_only", "audio_only", "lowest", "highest"}
	logFormats   = []string{"json", "console"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// NDI
	if !oneOf(c.NDI.ColorFormat, colorFormats) {
		return fmt.Errorf("ndi.color_format must be one of %s", strings.Join(colorFormats, ", "))
	}
	if !oneOf(c.NDI.Bandwidth, bandwidths) {
		return fmt.Errorf("ndi.bandwidth must be one of %s", strings.Join(bandwidths, ", "))
	}
	for _, entry := range c.NDI.SimulatedSources {
		name, addr := strings.TrimSpace(entry), ""
		if i := strings.LastIndex(name, "@"); i >= 0 {
			name, addr = strings.TrimSpace(name[:i]), strings.TrimSpace(name[i+1:])
		}
		if err := validation.ValidateSourceName(name); err != nil {
			return fmt.Errorf("ndi.simulated_sources %q: %w", entry, err)
		}
		if err := validation.ValidateSourceAddress(addr); err != nil {
			return fmt.Errorf("ndi.simulated_sources %q: %w", entry, err)
		}
	}

	// Discovery
	if c.Discovery.PollInterval <= 0 || c.Discovery.PollInterval > time.Second {
		return fmt.Errorf("discovery.poll_interval must be in (0, 1s]")
	}
	if c.Discovery.RefreshInterval <= 0 {
		return fmt.Errorf("discovery.refresh_interval must be > 0")
	}

	// Player
	if c.Player.CaptureTimeout <= 0 {
		return fmt.Errorf("player.capture_timeout must be > 0")
	}
	if c.Player.ConnectTimeout <= 0 {
		return fmt.Errorf("player.connect_timeout must be > 0")
	}
	if c.Player.Buffer.Video < 1 || c.Player.Buffer.Audio < 1 || c.Player.Buffer.Metadata < 1 {
		return fmt.Errorf("player.buffer limits must be >= 1")
	}

	// Stream
	if c.Stream.PingInterval <= 0 {
		return fmt.Errorf("stream.ping_interval must be > 0")
	}
	if c.Stream.PongTimeout <= c.Stream.PingInterval {
		return fmt.Errorf("stream.pong_timeout must be > stream.ping_interval")
	}
	if c.Stream.WriteTimeout <= 0 {
		return fmt.Errorf("stream.write_timeout must be > 0")
	}
	if c.Stream.MaxVideoFPS < 0 {
		return fmt.Errorf("stream.max_video_fps must be >= 0")
	}

	// Monitoring
	if c.Monitoring.HealthCheckInterval <= 0 {
		return fmt.Errorf("monitoring.health_check_interval must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	if !oneOf(c.Logging.Format, logFormats) {
		return fmt.Errorf("logging.format must be one of %s", strings.Join(logFormats, ", "))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.KeyPrefix == "" {
			return fmt.Errorf("redis.key_prefix must not be empty when redis.enabled=true")
		}
		if c.Redis.TTL <= 0 {
			return fmt.Errorf("redis.ttl must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 0 // frame streams are long lived
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.NDI.ColorFormat = "uyvy_bgra"
	cfg.NDI.Bandwidth = "highest"
	cfg.NDI.AllowVideoFields = true
	cfg.NDI.Synthetic = true

	cfg.Discovery.ShowLocalSources = true
	cfg.Discovery.PollInterval = 10 * time.Millisecond
	cfg.Discovery.RefreshInterval = 500 * time.Millisecond

	cfg.Player.CaptureTimeout = time.Second
	cfg.Player.ConnectTimeout = 10 * time.Second
	cfg.Player.Buffer.Video = 1
	cfg.Player.Buffer.Audio = 32
	cfg.Player.Buffer.Metadata = 8

	cfg.Stream.PingInterval = 30 * time.Second
	cfg.Stream.PongTimeout = 60 * time.Second
	cfg.Stream.WriteTimeout = 10 * time.Second
	cfg.Stream.MaxVideoFPS = 5
	cfg.Stream.AllowedOrigins = []string{"*"}

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthCheckInterval = 10 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "ndilive"
	cfg.Redis.TTL = 30 * time.Second
	cfg.Redis.FailureThreshold = 5
	cfg.Redis.OpenTimeout = 15 * time.Second

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100

	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1

	cfg.Recording.Executable = "NDI Record"
	cfg.Recording.OutputDir = "."

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("NDILIVE_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("NDILIVE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("NDILIVE_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if v := os.Getenv("NDILIVE_SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.NDI.Simulate = b
		}
	}
	if ips := os.Getenv("NDILIVE_EXTRA_IPS"); ips != "" {
		c.Discovery.ExtraIPs = strings.Split(ips, ",")
	}
	if addr := os.Getenv("NDILIVE_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if secret := os.Getenv("NDILIVE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
		c.Auth.Enabled = true
	}
	if endpoint := os.Getenv("NDILIVE_JAEGER_ENDPOINT"); endpoint != "" {
		c.Tracing.JaegerEndpoint = endpoint
		c.Tracing.Enabled = true
	}
}
