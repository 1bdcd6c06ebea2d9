package store

import "time"

// Config aggregates per backend configuration
type Config struct {
	// AppName is sent as the postgres application_name and clickhouse client product
	AppName string
	Version string

	PG  PGConfig
	CH  CHConfig
	RDS RedisConfig

	// ConnectRetries bounds the startup ping loop for every backend (default 6)
	ConnectRetries int
	// PingTimeout bounds a single startup ping (default 3s)
	PingTimeout time.Duration
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled bool
	URL     string
}

// RedisConfig configures redis connectivity
type RedisConfig struct {
	Enabled  bool
	Addr     string
	DB       int
	Password string
}

func (c Config) retries() int {
	if c.ConnectRetries > 0 {
		return c.ConnectRetries
	}
	return 6
}

func (c Config) pingTimeout() time.Duration {
	if c.PingTimeout > 0 {
		return c.PingTimeout
	}
	return 3 * time.Second
}
