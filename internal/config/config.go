package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	Audit  AuditConfig  `mapstructure:"audit"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// BridgeConfig holds the relay core timings and limits.
type BridgeConfig struct {
	// Liveness sweep cadence and thresholds. StaleAfter and DisconnectAfter
	// must stay above the 30s client heartbeat interval to tolerate jitter.
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	DisconnectAfter time.Duration `mapstructure:"disconnect_after"`
	// A connection that never sends register is dropped after this grace.
	ConnectingGrace time.Duration `mapstructure:"connecting_grace"`

	DefaultMaxLots float64 `mapstructure:"default_max_lots"`

	// Per-connection outbound queue depth; overflow drops the oldest message.
	OutboundQueue int `mapstructure:"outbound_queue"`
	// Recent copy events kept in memory for observer replay.
	EventRing int `mapstructure:"event_ring"`

	ReadLimit int64 `mapstructure:"read_limit"`
}

type AuditConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	CleanupSpec   string        `mapstructure:"cleanup_spec"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8765")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("bridge.sweep_interval", "10s")
	v.SetDefault("bridge.stale_after", "75s")
	v.SetDefault("bridge.disconnect_after", "150s")
	v.SetDefault("bridge.connecting_grace", "30s")
	v.SetDefault("bridge.default_max_lots", 100.0)
	v.SetDefault("bridge.outbound_queue", 64)
	v.SetDefault("bridge.event_ring", 100)
	v.SetDefault("bridge.read_limit", 1<<20)
	v.SetDefault("audit.retention", "720h")
	v.SetDefault("audit.cleanup_spec", "@every 6h")
	v.SetDefault("audit.stats_interval", "60s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
