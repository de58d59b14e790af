package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config carries the contract service settings. Values come from an optional
// YAML file, overridden by environment variables.
type Config struct {
	ListenAddr       string `yaml:"listenAddr"       envconfig:"LISTEN_ADDR"`
	DatabaseURL      string `yaml:"databaseUrl"      envconfig:"DATABASE_URL"`
	SigningSecret    string `yaml:"signingSecret"    envconfig:"SIGNING_SECRET"`
	CertValidityDays int    `yaml:"certValidityDays" envconfig:"CERT_VALIDITY_DAYS"`
	LogLevel         string `yaml:"logLevel"         envconfig:"LOG_LEVEL"`
	ShutdownTimeout  string `yaml:"shutdownTimeout"  envconfig:"SHUTDOWN_TIMEOUT"`
}

var defaultConfig = Config{
	ListenAddr:       ":8084",
	CertValidityDays: 365,
	LogLevel:         "info",
	ShutdownTimeout:  "30s",
}

// Load reads the YAML config file at path (if path is non-empty) and then
// applies environment overrides. The signing secret is required: the keyed
// verification hash is worthless with a guessable or empty key.
func Load(path string) (*Config, error) {
	cfg := defaultConfig
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process("contracts", &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("config: SIGNING_SECRET is required")
	}
	if cfg.CertValidityDays <= 0 {
		cfg.CertValidityDays = defaultConfig.CertValidityDays
	}
	return &cfg, nil
}
