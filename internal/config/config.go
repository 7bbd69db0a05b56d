package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is process configuration for the credential pool and its admin
// HTTP binary: a file loaded once at startup, with a small set of
// deployment secrets overridable by environment variables.
type Config struct {
	CredentialsPath string `yaml:"credentialsPath" json:"credentialsPath"`
	AdminAPIKey     string `yaml:"adminApiKey" json:"adminApiKey"`
	AdminBindAddr   string `yaml:"adminBindAddr" json:"adminBindAddr"`

	LoadBalancingMode     string `yaml:"loadBalancingMode" json:"loadBalancingMode"`
	CloudPassCredentialID int    `yaml:"cloudPassCredentialId" json:"cloudPassCredentialId"`

	MachineID string `yaml:"machineId" json:"machineId"`

	RefreshAheadSeconds int `yaml:"refreshAheadSeconds" json:"refreshAheadSeconds"`

	FailureStreakThreshold      int `yaml:"failureStreakThreshold" json:"failureStreakThreshold"`
	FailureHardDisableThreshold int `yaml:"failureHardDisableThreshold" json:"failureHardDisableThreshold"`

	Debug   bool   `yaml:"debug" json:"debug"`
	LogFile string `yaml:"logFile" json:"logFile"`
}

// Defaults mirrors the literal defaults this package documents elsewhere.
func Defaults() Config {
	return Config{
		CredentialsPath:             "credentials.json",
		AdminBindAddr:               ":8765",
		LoadBalancingMode:           "priority-first",
		RefreshAheadSeconds:         300,
		FailureStreakThreshold:      5,
		FailureHardDisableThreshold: 20,
	}
}

// Deployment secrets allowed to override the config file.
const (
	envAdminKey        = "CREDPOOL_ADMIN_KEY"
	envCredentialsPath = "CREDPOOL_CREDENTIALS_PATH"
)

// Load reads path (YAML or JSON, sniffed by extension, falling back to
// trying both when the extension is unrecognized or absent), applies env
// overrides, then fills any still-zero fields from Defaults. A missing
// file at path is not an error: Load falls back to defaults plus env.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := unmarshalByExt(path, data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if v := os.Getenv(envAdminKey); v != "" {
		cfg.AdminAPIKey = v
	}
	if v := os.Getenv(envCredentialsPath); v != "" {
		cfg.CredentialsPath = v
	}

	applyDefaults(&cfg)

	log.WithField("path", path).Info("config: loaded")
	return cfg, nil
}

func unmarshalByExt(path string, data []byte, cfg *Config) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err2 := json.Unmarshal(data, cfg); err2 != nil {
				return fmt.Errorf("parse config file (tried YAML and JSON): %w", err)
			}
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.CredentialsPath == "" {
		cfg.CredentialsPath = d.CredentialsPath
	}
	if cfg.AdminBindAddr == "" {
		cfg.AdminBindAddr = d.AdminBindAddr
	}
	if cfg.LoadBalancingMode == "" {
		cfg.LoadBalancingMode = d.LoadBalancingMode
	}
	if cfg.RefreshAheadSeconds <= 0 {
		cfg.RefreshAheadSeconds = d.RefreshAheadSeconds
	}
	if cfg.FailureStreakThreshold <= 0 {
		cfg.FailureStreakThreshold = d.FailureStreakThreshold
	}
	if cfg.FailureHardDisableThreshold <= 0 {
		cfg.FailureHardDisableThreshold = d.FailureHardDisableThreshold
	}
}
