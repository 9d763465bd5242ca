// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultMistralURL   = "https://api.mistral.ai/v1/chat/completions"
	defaultMistralModel = "mistral-large-latest"

	minProviderTimeout = 20000
	maxProviderTimeout = 30000
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and
// applies environment overrides (provider.api_key <- PROVIDER_API_KEY).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from an explicit YAML path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	registerDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// registerDefaults makes every key known to viper so AutomaticEnv can
// override it during Unmarshal even when the YAML omits the key.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "interpharma-gateway")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("server.read_timeout", 10000)
	v.SetDefault("server.write_timeout", 0) // derived from provider.timeout
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("provider.kind", ProviderKindHTTP)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.timeout", minProviderTimeout)
	v.SetDefault("provider.mock", false)

	v.SetDefault("rate_limit.store", StoreMemory)
	v.SetDefault("rate_limit.window", 60000)
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.key_prefix", "ratelimit:")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 30000)
	v.SetDefault("cache.key_prefix", "answer:")

	v.SetDefault("audit.enabled", false)

	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("camunda.enabled", false)
	v.SetDefault("camunda.broker_address", "")
	v.SetDefault("camunda.plaintext", true)
	v.SetDefault("camunda.request_timeout", 30000)

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory until it sees go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in YAML string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honours the variable names the legacy services used.
func overrideEmptyConfig(cfg *Config) {
	p := &cfg.Provider

	if p.APIKey == "" {
		p.APIKey = firstEnv("AI_API_KEY", "MISTRAL_API_KEY")
		if p.Kind == ProviderKindGemini && p.APIKey == "" {
			p.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if p.BaseURL == "" && p.Kind == ProviderKindHTTP {
		p.BaseURL = firstEnv("AI_PROVIDER_URL", "MISTRAL_API_URL")
		if p.BaseURL == "" && os.Getenv("MISTRAL_API_KEY") != "" {
			p.BaseURL = defaultMistralURL
		}
	}
	if p.Model == "" {
		p.Model = os.Getenv("MISTRAL_MODEL")
	}
	if os.Getenv("DEV_MEDICAL_MOCK") == "1" {
		p.Mock = true
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if port := os.Getenv("PORT"); port != "" && cfg.Server.Port == "8080" {
		cfg.Server.Port = port
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			return val
		}
	}
	return ""
}

// applyDefaults fills values a YAML file may have zeroed explicitly.
func applyDefaults(cfg *Config) {
	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = ProviderKindHTTP
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = defaultMistralModel
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = minProviderTimeout
	}

	if cfg.RateLimit.Store == "" {
		cfg.RateLimit.Store = StoreMemory
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = 60000
	}
	if cfg.RateLimit.Max == 0 {
		cfg.RateLimit.Max = 30
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30000
	}

	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = cfg.Provider.RequestBudget()
	}
	if cfg.Server.BodyLimit == 0 {
		cfg.Server.BodyLimit = 1 << 20
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, w := range cfg.Workers {
		if w.MaxJobsActive == 0 {
			w.MaxJobsActive = 5
		}
		if w.Timeout == 0 {
			w.Timeout = cfg.Provider.RequestBudget()
		}
		if w.MaxRetries == 0 {
			w.MaxRetries = 3
		}
		cfg.Workers[key] = w
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Provider.Kind {
	case ProviderKindHTTP, ProviderKindGemini:
	default:
		return fmt.Errorf("provider.kind must be %q or %q, got %q", ProviderKindHTTP, ProviderKindGemini, cfg.Provider.Kind)
	}
	if cfg.Provider.Timeout < minProviderTimeout || cfg.Provider.Timeout > maxProviderTimeout {
		return fmt.Errorf("provider.timeout must be between %d and %d ms", minProviderTimeout, maxProviderTimeout)
	}

	// A query whose provider attempts all time out must still be answered
	// before the HTTP write deadline or the job lock runs out.
	floor := ProviderShapeCount * cfg.Provider.Timeout
	if cfg.Server.WriteTimeout <= floor {
		return fmt.Errorf("server.write_timeout must exceed %d ms (%d shapes x provider.timeout)", floor, ProviderShapeCount)
	}
	for taskType, w := range cfg.Workers {
		if w.Enabled && w.Timeout <= floor {
			return fmt.Errorf("workers.%s.timeout must exceed %d ms (%d shapes x provider.timeout)", taskType, floor, ProviderShapeCount)
		}
	}

	if cfg.RateLimit.Max < 0 || cfg.RateLimit.Window < 0 {
		return fmt.Errorf("rate_limit.max and rate_limit.window must be positive")
	}
	switch cfg.RateLimit.Store {
	case StoreMemory:
	case StoreRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required when rate_limit.store is redis")
		}
	default:
		return fmt.Errorf("rate_limit.store must be %q or %q", StoreMemory, StoreRedis)
	}

	if cfg.Cache.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when cache is enabled")
	}

	if cfg.Audit.Enabled {
		pg := cfg.Database.Postgres
		if pg.Host == "" || pg.Database == "" || pg.User == "" {
			return fmt.Errorf("database.postgres host, database and user are required when audit is enabled")
		}
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig returns the settings for a task type, falling back to defaults.
func GetWorkerConfig(cfg *Config, taskType string) WorkerConfig {
	if w, ok := cfg.Workers[taskType]; ok {
		return w
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       cfg.Provider.RequestBudget(),
		MaxRetries:    3,
	}
}
