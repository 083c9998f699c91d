package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_APIBaseURLDefault(t *testing.T) {
	os.Unsetenv("API_BASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:8000/api/v1" {
		t.Errorf("APIBaseURL = %q, want default", cfg.APIBaseURL)
	}
}

func TestConfig_APIBaseURLFromEnv(t *testing.T) {
	os.Setenv("API_BASE_URL", "https://backend.internal/api")
	defer os.Unsetenv("API_BASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIBaseURL != "https://backend.internal/api" {
		t.Errorf("APIBaseURL = %q, want env value", cfg.APIBaseURL)
	}
}

func TestConfig_DefaultProfile(t *testing.T) {
	os.Unsetenv("CRAWL_PROFILE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Profile.JoinCeiling != 3 {
		t.Errorf("JoinCeiling = %d, want 3", cfg.Profile.JoinCeiling)
	}
	if cfg.Profile.CodePollSeconds != 10 {
		t.Errorf("CodePollSeconds = %d, want 10", cfg.Profile.CodePollSeconds)
	}
	if cfg.Profile.DialogLimit != 500 {
		t.Errorf("DialogLimit = %d, want 500", cfg.Profile.DialogLimit)
	}
}

func TestConfig_ProfileFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	content := "rate_limit: 5.0\njoin_ceiling: 2\ndialog_limit: 400\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CRAWL_PROFILE", path)
	defer os.Unsetenv("CRAWL_PROFILE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Profile.RateLimit != 5.0 {
		t.Errorf("RateLimit = %v, want 5.0", cfg.Profile.RateLimit)
	}
	if cfg.Profile.JoinCeiling != 2 {
		t.Errorf("JoinCeiling = %d, want 2", cfg.Profile.JoinCeiling)
	}
}

func TestConfig_ProfileBadFile(t *testing.T) {
	os.Setenv("CRAWL_PROFILE", "/nonexistent/profile.yaml")
	defer os.Unsetenv("CRAWL_PROFILE")

	if _, err := Load(); err == nil {
		t.Error("expected error for missing profile file")
	}
}
