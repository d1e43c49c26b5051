package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsPassValidation(t *testing.T) {
	cfg := defaults()
	cfg.Proxy.Port = 8080
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestCLIFlagOverridesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	os.WriteFile(path, []byte("proxy:\n  port: 9000\nthrottle:\n  speed: dsl\n"), 0o644)

	os.Setenv("SPEED", "56k")
	defer os.Unsetenv("SPEED")

	cfg, err := Load([]string{"--config", path, "--speed", "isdn"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Throttle.Speed != "isdn" {
		t.Fatalf("CLI flag should win over env and YAML, got %q", cfg.Throttle.Speed)
	}
	if cfg.Proxy.Port != 9000 {
		t.Fatalf("YAML should set port when no flag/env given, got %d", cfg.Proxy.Port)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	os.WriteFile(path, []byte("throttle:\n  speed: dsl\n"), 0o644)

	os.Setenv("SPEED", "56k")
	defer os.Unsetenv("SPEED")

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Throttle.Speed != "56k" {
		t.Fatalf("env should override YAML, got %q", cfg.Throttle.Speed)
	}
}

func TestUnknownYAMLKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	os.WriteFile(path, []byte("bogus_section:\n  foo: bar\n"), 0o644)

	if _, err := Load([]string{"--config", path}); err == nil {
		t.Fatalf("expected unknown top-level key to be rejected")
	}
}

func TestInvalidAccessModeRejected(t *testing.T) {
	cfg := defaults()
	cfg.Proxy.Port = 8080
	cfg.Access.Mode = "nonsense"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected invalid access.mode to fail validation")
	}
}

func TestInvalidTargetDateRejected(t *testing.T) {
	cfg := defaults()
	cfg.Proxy.Port = 8080
	cfg.Proxy.TargetDate = "not-a-date"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected invalid target_date to fail validation")
	}
}

func TestLiveReloadSwapIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	os.WriteFile(path, []byte("throttle:\n  speed: unlimited\n"), 0o644)

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatal(err)
	}
	live := NewLive(cfg)

	os.WriteFile(path, []byte("throttle:\n  speed: 56k\n"), 0o644)
	r := &Reloader{live: live}
	r.reloadOnce()

	if live.Get().Throttle.Speed != "56k" {
		t.Fatalf("expected reload to pick up new speed, got %q", live.Get().Throttle.Speed)
	}
}

func TestReloadKeepsPreviousConfigOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	os.WriteFile(path, []byte("throttle:\n  speed: unlimited\n"), 0o644)

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatal(err)
	}
	live := NewLive(cfg)

	os.WriteFile(path, []byte("throttle:\n  speed: not-a-real-speed\n"), 0o644)
	r := &Reloader{live: live}
	r.reloadOnce()

	if live.Get().Throttle.Speed != "unlimited" {
		t.Fatalf("expected invalid reload to keep previous config, got %q", live.Get().Throttle.Speed)
	}
}
