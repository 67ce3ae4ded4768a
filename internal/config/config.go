package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		URL string `yaml:"url"`
		// AuthzURL is the service-account DSN for the privileged role
		// store; it falls back to URL for development setups.
		AuthzURL string `yaml:"authz_url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Scoreboard struct {
		TTL          string `yaml:"ttl"`
		PushInterval string `yaml:"push_interval"`
	} `yaml:"scoreboard"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// AuthzDSN returns the privileged DSN, defaulting to the app DSN.
func (c Config) AuthzDSN() string {
	if c.Postgres.AuthzURL != "" {
		return c.Postgres.AuthzURL
	}
	return c.Postgres.URL
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
