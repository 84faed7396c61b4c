package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const EnvPrefix = "AUTHCTL_"

func parseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("env config: %w", err)
	}
	return nil
}
