// Package config loads runtime configuration from the environment and the
// optional protocol parameters file.
package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
)

// Config is the process-level configuration. Protocol economics live in
// Params, loaded separately from a YAML file.
type Config struct {
	ListenAddr string `env:"ORACLE_LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"ORACLE_LOG_LEVEL,default=info"`

	DatabaseURL string `env:"DATABASE_URL"`

	TokenContractURL string `env:"TOKEN_CONTRACT_URL"`
	TokenContractKey string `env:"TOKEN_CONTRACT_KEY"`

	VaultAddress    string `env:"VAULT_ADDRESS,default=oracle-vault"`
	TreasuryAddress string `env:"TREASURY_ADDRESS,default=oracle-treasury"`

	// Operators is a comma-separated list of addresses allowed to create
	// feeds, pause the system and claim slashed funds.
	Operators string `env:"ORACLE_OPERATORS"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET"`
	AdminUser      string `env:"ADMIN_USER"`
	AdminPassword  string `env:"ADMIN_PASSWORD"`

	ParamsPath string `env:"ORACLE_PARAMS_PATH"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// OperatorSet splits the operator list into a membership set.
func (c *Config) OperatorSet() map[string]bool {
	set := make(map[string]bool)
	for _, op := range strings.Split(c.Operators, ",") {
		op = strings.TrimSpace(op)
		if op != "" {
			set[op] = true
		}
	}
	return set
}
