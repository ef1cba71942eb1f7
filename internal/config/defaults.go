package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultOpenPolicy         = "strict_adjacent"
	DefaultExtremaPolicy      = "include_open"
	DefaultMissingOrderPolicy = "fail"
	DefaultBackend            = "memory"
	DefaultRedisPrefix        = "perp"
	DefaultSourceKind         = "file"
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultReadTimeout        = 60 * time.Second
	DefaultBufferSize         = 1024
	DefaultFlushInterval      = 5 * time.Second
	DefaultMetricsAddr        = ":9090"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "perp_stats"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
)

// Default granularities.
var (
	DefaultCandlePeriods = []string{"any", "5m", "15m", "hourly", "4h", "daily", "weekly"}
	DefaultStatPeriods   = []string{"hourly", "daily", "weekly"}
	DefaultCandleFeeds   = []string{"fast_price"}
)

// ApplyDefaults fills optional fields.
func (c *Config) ApplyDefaults() {
	if len(c.Candles.Periods) == 0 {
		c.Candles.Periods = append([]string(nil), DefaultCandlePeriods...)
	}
	if len(c.Candles.Feeds) == 0 {
		c.Candles.Feeds = append([]string(nil), DefaultCandleFeeds...)
	}
	if c.Candles.OpenPolicy == "" {
		c.Candles.OpenPolicy = DefaultOpenPolicy
	}
	if c.Candles.ExtremaPolicy == "" {
		c.Candles.ExtremaPolicy = DefaultExtremaPolicy
	}

	if len(c.Stats.Periods) == 0 {
		c.Stats.Periods = append([]string(nil), DefaultStatPeriods...)
	}

	if c.Orders.MissingOrderPolicy == "" {
		c.Orders.MissingOrderPolicy = DefaultMissingOrderPolicy
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultBackend
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = DefaultRedisPrefix
	}

	// Source defaults
	if c.Source.Kind == "" {
		c.Source.Kind = DefaultSourceKind
	}
	if c.Source.ReconnectBaseDelay == 0 {
		c.Source.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Source.ReconnectMaxDelay == 0 {
		c.Source.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Source.PingInterval == 0 {
		c.Source.PingInterval = DefaultPingInterval
	}
	if c.Source.ReadTimeout == 0 {
		c.Source.ReadTimeout = DefaultReadTimeout
	}
	if c.Source.BufferSize == 0 {
		c.Source.BufferSize = DefaultBufferSize
	}
	if c.Source.FlushInterval == 0 {
		c.Source.FlushInterval = DefaultFlushInterval
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
