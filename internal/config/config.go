package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the full client configuration, loaded from yaml with env
// overrides. Zero-config runs work off the defaults below.
type Config struct {
	Signaling SignalingConfig `mapstructure:"signaling"`
	Media     MediaConfig     `mapstructure:"media"`
	Diag      DiagConfig      `mapstructure:"diag"`
	Bridges   BridgesConfig   `mapstructure:"bridges"`
	RTC       RTCConfig       `mapstructure:"rtc"`
}

type SignalingConfig struct {
	URL               string        `mapstructure:"url"`
	Token             string        `mapstructure:"token"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectBase     time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
}

type MediaConfig struct {
	MultiShareScreen bool `mapstructure:"multi_share_screen"`
}

type DiagConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type BridgesConfig struct {
	RedisAddr   string `mapstructure:"redis_addr"`
	NATSAddr    string `mapstructure:"nats_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	NATSSubject string `mapstructure:"nats_subject"`
}

// Load reads the config file at path (optional) over built-in defaults.
// Environment variables prefixed EZCARE_ override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("signaling.url", "wss://localhost:3000/signal")
	v.SetDefault("signaling.request_timeout", "10s")
	v.SetDefault("signaling.dial_timeout", "10s")
	v.SetDefault("signaling.reconnect_attempts", 5)
	v.SetDefault("signaling.reconnect_base", "500ms")
	v.SetDefault("signaling.reconnect_max", "8s")
	v.SetDefault("media.multi_share_screen", false)
	v.SetDefault("diag.enabled", true)
	v.SetDefault("diag.address", ":9091")
	v.SetDefault("bridges.redis_prefix", "room_events")
	v.SetDefault("bridges.nats_subject", "ezcare.room")
	v.SetDefault("rtc.ice_port_range_start", 50000)
	v.SetDefault("rtc.ice_port_range_end", 60000)

	v.SetEnvPrefix("EZCARE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if len(cfg.RTC.EnabledCodecs) == 0 {
		cfg.RTC.EnabledCodecs = defaultCodecs()
	}
	return cfg, nil
}
