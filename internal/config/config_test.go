package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/raaihank/pii-sentinel/internal/alias"
	"github.com/raaihank/pii-sentinel/internal/keyvault"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const sample = `
server:
  port: 9000
logging:
  level: debug
  format: console
pipeline:
  decode_responses: true
aliases:
  generate_variations: true
  mappings:
    - real: Joe Smith
      alias: Alex Carter
      pii_type: name
      enabled: true
      profile_id: work
custom_rules:
  enabled: true
  templates: [ssn]
  items:
    - id: emp
      name: Employee ID
      pattern: 'EMP-\d+'
      replacement: '[EMP]'
      priority: 5
      enabled: true
      global: true
      created_at: 2024-03-01T10:00:00Z
vault:
  enabled: true
  mode: warn-first
  redaction_mode: partial
  enabled_keys: [hunter2hunter2]
`

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9000 || cfg.Logging.Level != "debug" || !cfg.Pipeline.DecodeResponses {
		t.Errorf("scalars not loaded: %+v", cfg.Server)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default read timeout lost: %v", cfg.Server.ReadTimeout)
	}

	want := []alias.Mapping{{Real: "Joe Smith", Alias: "Alex Carter", PIIType: alias.PIIName, Enabled: true, ProfileID: "work"}}
	if diff := cmp.Diff(want, cfg.Aliases.Mappings); diff != "" {
		t.Errorf("mappings (-want +got):\n%s", diff)
	}

	if len(cfg.CustomRules.Items) != 1 {
		t.Fatalf("rules = %+v", cfg.CustomRules.Items)
	}
	rule := cfg.CustomRules.Items[0]
	if rule.Pattern != `EMP-\d+` || !rule.CreatedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("rule = %+v", rule)
	}
	if diff := cmp.Diff([]string{"ssn"}, cfg.CustomRules.Templates); diff != "" {
		t.Errorf("templates (-want +got):\n%s", diff)
	}

	if cfg.Vault.Mode != keyvault.ModeWarnFirst || cfg.Vault.RedactionMode != keyvault.RedactPartial {
		t.Errorf("vault = %+v", cfg.Vault)
	}
	if diff := cmp.Diff([]string{"hunter2hunter2"}, cfg.Vault.EnabledKeys); diff != "" {
		t.Errorf("enabled keys (-want +got):\n%s", diff)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(GetDefaults(), cfg); diff != "" {
		t.Errorf("defaults changed (-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_SERVER_PORT", "9191")
	t.Setenv("SENTINEL_VAULT_MODE", "log-only")
	t.Setenv("SENTINEL_REDIS_ADDR", "redis:6380")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Vault.Mode != keyvault.ModeLogOnly {
		t.Errorf("vault mode = %s", cfg.Vault.Mode)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("redis addr = %s", cfg.Redis.Addr)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"port":           "server:\n  port: 70000\n",
		"log level":      "logging:\n  level: loud\n",
		"log format":     "logging:\n  format: xml\n",
		"vault mode":     "vault:\n  mode: shout\n",
		"redaction mode": "vault:\n  redaction_mode: blur\n",
		"empty alias":    "aliases:\n  mappings:\n    - real: Joe\n      alias: ''\n",
		"rate limit":     "rate_limit:\n  enabled: true\n  burst: 0\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
