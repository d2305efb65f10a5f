// internal/workers/solvency/calculate-rating/config.go
package calculaterating

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Second,
	}
}
