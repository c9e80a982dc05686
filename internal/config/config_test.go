package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: ":9000"
auth:
  jwt_secret: prod-secret
  token_ttl_hours: 12
uploads:
  max_size_bytes: 1048576
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("addr %q", cfg.Server.Addr)
	}
	if cfg.Auth.JWTSecret != "prod-secret" || cfg.Auth.TokenTTLHours != 12 {
		t.Fatalf("auth override lost: %+v", cfg.Auth)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.BasePath != "/api" {
		t.Fatalf("base path default lost: %q", cfg.Server.BasePath)
	}
	if len(cfg.Uploads.AllowedTypes) == 0 {
		t.Fatal("allowed types default lost")
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	if _, err := FromYAML([]byte(`auth: {jwt_secret: ""}`)); err == nil {
		t.Fatal("expected validation error for empty jwt secret")
	}
	if _, err := FromYAML([]byte(`{{not yaml`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadMissingFileSuggestsInit(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "tb config init") {
		t.Fatalf("expected init hint, got %v", err)
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":5000" {
		t.Fatalf("expected defaults, got %+v", cfg.Server)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskbase.yml")
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.TokenTTLHours != Default().Auth.TokenTTLHours {
		t.Fatalf("round trip changed config: %+v", cfg.Auth)
	}
}
