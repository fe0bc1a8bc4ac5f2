package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"craefto/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, configPath) {
		t.Fatalf("unexpected validate output: %q", out)
	}

	target := filepath.Join(base, "nested", "craefto.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, configPath); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing file error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, configPath); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("s3cret-token"))
	cfg.Generation.APIKey = "backend-key"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "show"}, configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "s3cret-token") || strings.Contains(out, "backend-key") {
		t.Fatalf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "[generation]") || !strings.Contains(out, "********") {
		t.Fatalf("unexpected config show output:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"config", "show", "--reveal-secrets"}, configPath)
	if err != nil {
		t.Fatalf("config show --reveal-secrets: %v", err)
	}
	if !strings.Contains(out, "backend-key") {
		t.Fatalf("expected revealed key:\n%s", out)
	}
}
