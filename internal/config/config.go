package config

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	// ConnectorsFile is the YAML file holding connector credentials.
	ConnectorsFile string `mapstructure:"connectors_file" yaml:"connectors_file"`

	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// UpstreamConfig tunes outbound vendor API calls. Calls are not retried;
// a breaker keeps a flapping vendor from absorbing every call.
type UpstreamConfig struct {
	TimeoutMS int `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	// Breaker half-opens after this many consecutive failures.
	BreakerFailures int `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	// SQLTimeoutSeconds is the default wall-clock deadline for SQL-family
	// queries when the task does not carry its own.
	SQLTimeoutSeconds int `mapstructure:"sql_timeout_seconds" yaml:"sql_timeout_seconds"`
}

// CacheConfig configures the dashboard/asset metadata cache. With no nodes
// configured the store falls back to an in-process map.
type CacheConfig struct {
	Nodes      []string `mapstructure:"nodes" yaml:"nodes"`
	Password   string   `mapstructure:"password" yaml:"password"`
	DB         int      `mapstructure:"db" yaml:"db"`
	TTLSeconds int      `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
}
