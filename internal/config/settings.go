package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"uwave/internal/httputil"
	"uwave/internal/models"
)

type ResolverConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type PlayerConfig struct {
	PreferredResolution string `mapstructure:"preferred_resolution"`
	DefaultPlaybackType int    `mapstructure:"default_playback_type"`
}

type EngineConfig struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

type SocketConfig struct {
	URL              string        `mapstructure:"url"`
	AuthToken        string        `mapstructure:"auth_token"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
}

type MaintenanceConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
}

type Settings struct {
	ListenAddr  string            `mapstructure:"listen_addr"`
	DBPath      string            `mapstructure:"db_path"`
	Debug       bool              `mapstructure:"debug"`
	CORSOrigin  string            `mapstructure:"cors_origin"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Player      PlayerConfig      `mapstructure:"player"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Socket      SocketConfig      `mapstructure:"socket"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

func (s *Settings) DefaultPlaybackType() models.PlaybackType {
	return models.PlaybackType(s.Player.DefaultPlaybackType)
}

func (s *Settings) Validate() error {
	if !s.DefaultPlaybackType().Valid() {
		return fmt.Errorf("player.default_playback_type: unknown value %d", s.Player.DefaultPlaybackType)
	}
	if err := httputil.ValidateServiceURL(s.Resolver.BaseURL); err != nil {
		return fmt.Errorf("resolver.base_url: %w", err)
	}
	if s.Socket.URL != "" {
		if err := httputil.ValidateSocketURL(s.Socket.URL); err != nil {
			return fmt.Errorf("socket.url: %w", err)
		}
	}
	if s.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver.timeout must be positive")
	}
	if s.Socket.ReconnectBackoff <= 0 {
		return fmt.Errorf("socket.reconnect_backoff must be positive")
	}
	if s.Socket.PingInterval <= 0 {
		return fmt.Errorf("socket.ping_interval must be positive")
	}
	// zero selects the engine's default timeout
	if s.Engine.ProbeTimeout < 0 {
		return fmt.Errorf("engine.probe_timeout must not be negative")
	}
	if s.Maintenance.Interval <= 0 {
		return fmt.Errorf("maintenance.interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":6043")
	v.SetDefault("db_path", "./data/uwave.db")
	v.SetDefault("debug", false)
	v.SetDefault("cors_origin", "")

	v.SetDefault("resolver.base_url", "http://localhost:8081")
	v.SetDefault("resolver.timeout", 20*time.Second)
	v.SetDefault("resolver.rate_limit", 5.0)
	v.SetDefault("resolver.burst", 5)
	v.SetDefault("resolver.cache_ttl", time.Hour)

	v.SetDefault("player.preferred_resolution", "360p")
	v.SetDefault("player.default_playback_type", int(models.PlaybackAudioOnly))

	v.SetDefault("engine.probe_timeout", 10*time.Second)

	v.SetDefault("socket.url", "")
	v.SetDefault("socket.auth_token", "")
	v.SetDefault("socket.reconnect_backoff", 5*time.Second)
	v.SetDefault("socket.ping_interval", 30*time.Second)

	v.SetDefault("maintenance.interval", time.Hour)
	v.SetDefault("maintenance.history_retention", 30*24*time.Hour)
}

// Load reads settings from an optional YAML file and UWAVE_* environment
// variables. The file is UWAVE_CONFIG when set, otherwise ./uwave.yaml if
// present.
func Load() (*Settings, error) {
	return load(viper.New(), os.Getenv("UWAVE_CONFIG"))
}

func load(v *viper.Viper, file string) (*Settings, error) {
	setDefaults(v)

	v.SetEnvPrefix("UWAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("uwave")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &settings, nil
}
