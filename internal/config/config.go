// Package config loads the per-deployment configuration injected into the
// engine: token table, aliases, default prices, granularities and policies.
package config

import "time"

// Config is the root of the YAML configuration file.
type Config struct {
	Deployment DeploymentConfig `yaml:"deployment"`
	Engine     EngineConfig     `yaml:"engine"`
	Candles    CandleConfig     `yaml:"candles"`
	Stats      StatsConfig      `yaml:"stats"`
	Orders     OrdersConfig     `yaml:"orders"`
	Storage    StorageConfig    `yaml:"storage"`
	Source     SourceConfig     `yaml:"source"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// DeploymentConfig describes one protocol deployment.
type DeploymentConfig struct {
	Name            string            `yaml:"name"`
	GovernanceToken string            `yaml:"governance_token"`
	Tokens          []TokenConfig     `yaml:"tokens"`
	Aliases         map[string]string `yaml:"aliases"` // bridged identity -> canonical identity
}

// TokenConfig is one row of the token table.
type TokenConfig struct {
	Address      string `yaml:"address"`
	Symbol       string `yaml:"symbol"`
	Decimals     *int   `yaml:"decimals"`
	DefaultPrice string `yaml:"default_price"` // USD, decimal string, optional
}

// EngineConfig controls event processing.
type EngineConfig struct {
	DisableDedup bool `yaml:"disable_dedup"`
}

// CandleConfig controls the candle aggregator.
type CandleConfig struct {
	Periods       []string `yaml:"periods"`
	Feeds         []string `yaml:"feeds"` // price kinds that drive candles
	OpenPolicy    string   `yaml:"open_policy"`
	ExtremaPolicy string   `yaml:"extrema_policy"`
}

// StatsConfig controls trading and supply statistics.
type StatsConfig struct {
	Periods      []string `yaml:"periods"`
	SupplyTokens []string `yaml:"supply_tokens"`
}

// OrdersConfig controls the order tracker.
type OrdersConfig struct {
	MissingOrderPolicy string `yaml:"missing_order_policy"`
}

// StorageConfig selects the entity store backend and the optional mirror.
type StorageConfig struct {
	Backend          string `yaml:"backend"` // memory, postgres, redis
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`
	RedisDSN         string `yaml:"redis_dsn"`
	RedisPrefix      string `yaml:"redis_prefix"`
	ClickhouseDSN    string `yaml:"clickhouse_dsn"` // empty disables the mirror
}

// SourceConfig selects where events come from.
type SourceConfig struct {
	Kind               string        `yaml:"kind"` // file, ws
	Path               string        `yaml:"path"`
	URL                string        `yaml:"url"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
	BlockLag           int64         `yaml:"block_lag"` // blocks held back for reordering, 0 disables
	FlushInterval      time.Duration `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}
