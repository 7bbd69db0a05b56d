package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CredentialsPath != "credentials.json" {
		t.Errorf("CredentialsPath = %q, want default", cfg.CredentialsPath)
	}
	if cfg.FailureStreakThreshold != 5 {
		t.Errorf("FailureStreakThreshold = %d, want 5", cfg.FailureStreakThreshold)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "credentialsPath: /data/creds.json\nloadBalancingMode: round-robin\nfailureStreakThreshold: 3\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CredentialsPath != "/data/creds.json" {
		t.Errorf("CredentialsPath = %q", cfg.CredentialsPath)
	}
	if cfg.LoadBalancingMode != "round-robin" {
		t.Errorf("LoadBalancingMode = %q", cfg.LoadBalancingMode)
	}
	if cfg.FailureStreakThreshold != 3 {
		t.Errorf("FailureStreakThreshold = %d, want 3", cfg.FailureStreakThreshold)
	}
	if cfg.FailureHardDisableThreshold != 20 {
		t.Errorf("FailureHardDisableThreshold = %d, want default 20", cfg.FailureHardDisableThreshold)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("adminApiKey: from-file\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Setenv(envAdminKey, "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminAPIKey != "from-env" {
		t.Errorf("AdminAPIKey = %q, want env override", cfg.AdminAPIKey)
	}
}
