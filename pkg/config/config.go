// Package config loads and validates the options enumerated in
// spec.md §6. Grounded on the teacher's reach for gopkg.in/yaml.v3 for
// on-disk config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rewire/rewire/pkg/rewireerr"
)

// SMTPConfig configures the SMTP NotifierPort implementation.
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FromAddress string `yaml:"from_address"`
}

// WebhookConfig configures the webhook NotifierPort implementation.
type WebhookConfig struct {
	// TimeoutS, when positive and no SMTP host is set, selects the
	// webhook notifier with this HTTP client timeout; each notification
	// is POSTed to the expectation's owner_contact. Zero (the default)
	// leaves the webhook notifier unused.
	TimeoutS int64 `yaml:"timeout_s"`
}

// Config holds every option spec.md §6 enumerates.
type Config struct {
	DBPath         string        `yaml:"db_path"`
	ListenAddr     string        `yaml:"listen_addr"`
	ListenPort     int           `yaml:"listen_port"`
	BaseURL        string        `yaml:"base_url"`
	AdminToken     string        `yaml:"admin_token"`
	CheckEveryS    int64         `yaml:"check_every_s"`
	RenotifyAfterS int64         `yaml:"renotify_after_s"`
	SMTP           SMTPConfig    `yaml:"smtp"`
	Webhook        WebhookConfig `yaml:"webhook"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

// Default returns a Config with every spec-mandated default applied
// (check_every_s=60, renotify_after_s=0 i.e. disabled).
func Default() Config {
	return Config{
		DBPath:      "rewire.db",
		ListenAddr:  "0.0.0.0",
		ListenPort:  8080,
		BaseURL:     "http://localhost:8080",
		CheckEveryS: 60,
		MetricsAddr: ":9090",
	}
}

// Load reads and parses a YAML config file at path, applying Default
// for any field the file omits, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unusable service options (empty db_path or
// admin_token, check_every_s < 1, negative renotify_after_s, an invalid
// listen_port) before the service ever starts accepting traffic.
// Expectation constraints are checked separately, by
// rewiretypes.ValidateNewExpectation.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return rewireerr.Validation("db_path must not be empty")
	}
	if c.AdminToken == "" {
		return rewireerr.Validation("admin_token must not be empty")
	}
	if c.CheckEveryS < 1 {
		return rewireerr.Validation("check_every_s must be >= 1")
	}
	if c.RenotifyAfterS < 0 {
		return rewireerr.Validation("renotify_after_s must be >= 0")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return rewireerr.Validation("listen_port must be a valid TCP port")
	}
	return nil
}
