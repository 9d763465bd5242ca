// internal/common/config/config.go
package config

import "fmt"

// Config is the root gateway configuration.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Server    ServerConfig            `mapstructure:"server"`
	Provider  ProviderConfig          `mapstructure:"provider"`
	RateLimit RateLimitConfig         `mapstructure:"rate_limit"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Audit     AuditConfig             `mapstructure:"audit"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Tracing   TracingConfig           `mapstructure:"tracing"`
}

// TracingConfig points spans at an OTLP/HTTP collector (host:port). Empty
// endpoint keeps spans in-process.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	BodyLimit    int64    `mapstructure:"body_limit"`    // bytes
	ReadTimeout  int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int      `mapstructure:"write_timeout"` // milliseconds
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// Provider kinds.
const (
	ProviderKindHTTP   = "http"
	ProviderKindGemini = "gemini"
)

// ProviderConfig describes the upstream LLM. The API key is never logged.
type ProviderConfig struct {
	Kind    string `mapstructure:"kind"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds, per attempt
	Mock    bool   `mapstructure:"mock"`
}

// ProviderShapeCount is the most payload shapes a single query may try.
const ProviderShapeCount = 4

// requestSlack covers filtering, cache, normalizing and the response write (ms).
const requestSlack = 5000

// RequestBudget is the worst case for one query in milliseconds: every shape
// runs into the per-attempt timeout.
func (p ProviderConfig) RequestBudget() int {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = minProviderTimeout
	}
	return ProviderShapeCount*timeout + requestSlack
}

// Configured reports whether there is enough to attempt a real call.
func (p ProviderConfig) Configured() bool {
	if p.Kind == ProviderKindGemini {
		return p.APIKey != ""
	}
	return p.APIKey != "" && p.BaseURL != ""
}

// Rate-limit store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type RateLimitConfig struct {
	Store     string `mapstructure:"store"`
	Window    int    `mapstructure:"window"` // milliseconds
	Max       int    `mapstructure:"max"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type CacheConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	TTL       int    `mapstructure:"ttl"` // milliseconds
	KeyPrefix string `mapstructure:"key_prefix"`
}

type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the lib/pq connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	Plaintext      bool   `mapstructure:"plaintext"`
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// WorkerConfig holds per-task-type job worker settings.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
