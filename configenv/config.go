// Package configenv loads the process-wide operator settings from environment variables.
package configenv

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DefaultTrustStoreCommand refreshes the system trust store inside the nginx container.
const DefaultTrustStoreCommand = "update-ca-certificates --fresh"

// ConfigEnv holds the operator settings that are not part of a Catalogue resource.
type ConfigEnv struct {
	RunMode           string
	OperatorVersion   string // semver of the running operator, used to detect upgrades
	TrustStoreCommand string // command run in the workload container after the CA is written
	WorkloadContainer string // default nginx container name when a Catalogue does not set one
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*ConfigEnv, error) {
	cfg := &ConfigEnv{
		RunMode:           getEnv("RUN_MODE", "prod"),
		OperatorVersion:   getEnv("OPERATOR_VERSION", "0.1.0"),
		TrustStoreCommand: getEnv("TRUST_STORE_COMMAND", DefaultTrustStoreCommand),
		WorkloadContainer: getEnv("WORKLOAD_CONTAINER", "catalogue"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *ConfigEnv) error {
	if cfg.RunMode != "dev" && cfg.RunMode != "prod" {
		return errors.New("RUN_MODE must be either 'dev' or 'prod'")
	}

	if _, err := semver.NewVersion(cfg.OperatorVersion); err != nil {
		return fmt.Errorf("OPERATOR_VERSION must be a semantic version: %w", err)
	}

	if strings.TrimSpace(cfg.TrustStoreCommand) == "" {
		return errors.New("TRUST_STORE_COMMAND must not be empty")
	}

	if cfg.WorkloadContainer == "" {
		return errors.New("WORKLOAD_CONTAINER must not be empty")
	}

	return nil
}

// TrustStoreArgv splits TrustStoreCommand on whitespace.
func (c *ConfigEnv) TrustStoreArgv() []string {
	return strings.Fields(c.TrustStoreCommand)
}

// getEnv fetches an environment variable, returning a default value if it's not found
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
