// internal/workers/medical/medical-query/config.go
package medicalquery

import (
	"time"

	"interpharma-gateway/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = config.GetDuration(config.ProviderConfig{}.RequestBudget())
	}
	return &Config{Timeout: timeout}
}
