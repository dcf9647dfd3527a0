// Package config holds the small helpers the engagement binaries share
// for loading environment configuration and reporting fatal startup errors.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target from EMBERFORUM_-prefixed environment
// variables declared through env struct tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
