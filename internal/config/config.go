package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Feed struct {
		Path    string `mapstructure:"path"`
		Latency int64  `mapstructure:"latency"`
		EndTime int64  `mapstructure:"end_time"`
	} `mapstructure:"feed"`

	Session struct {
		StartTime        int64   `mapstructure:"start_time"`
		OrderSize        int64   `mapstructure:"order_size"`
		PositionLimit    int64   `mapstructure:"position_limit"`
		LiquidationRatio float64 `mapstructure:"liquidation_ratio"`
		Tick             int64   `mapstructure:"tick"`
		DepthLevels      int     `mapstructure:"depth_levels"`
	} `mapstructure:"session"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`

	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`
}

// Load reads the YAML config and lets MARKETSIM_* environment variables
// override any key.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MARKETSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("feed.latency", 1)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("redis.ttl", time.Minute)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Feed.Path == "" {
		return nil, fmt.Errorf("feed.path is required")
	}
	return &cfg, nil
}
