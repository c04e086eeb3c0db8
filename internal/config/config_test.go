package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
server:
  api_key: "k"
database:
  url: "postgres://localhost/outlier"
redis:
  url: "localhost:6379"
youtube:
  api_key: "yt-key"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, minimalYAML), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.YouTube.VideosTTL != 6*time.Hour || cfg.YouTube.ChannelTTL != 24*time.Hour || cfg.YouTube.SearchTTL != 2*time.Hour {
		t.Fatalf("unexpected cache TTL defaults: %+v", cfg.YouTube)
	}
	if cfg.YouTube.DailyQuota != 10000 {
		t.Fatalf("expected default quota, got %d", cfg.YouTube.DailyQuota)
	}

	for _, name := range []string{QueueAnalysis, QueueCleanup, QueueNotify} {
		q, ok := cfg.Queues[name]
		if !ok {
			t.Fatalf("queue %q missing from defaults", name)
		}
		if q.Workers <= 0 || q.MaxAttempts <= 0 || q.StallTimeout <= 0 || q.Retention <= 0 {
			t.Fatalf("queue %q has incomplete defaults: %+v", name, q)
		}
	}
	if cfg.Queues[QueueAnalysis].Workers >= cfg.Queues[QueueNotify].Workers {
		t.Fatalf("analysis lane must be throttled below notify")
	}
}

func TestLoadConfig_RequiredFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"missing database", "redis:\n  url: \"localhost:6379\"\nyoutube:\n  api_key: \"k\"\n"},
		{"missing redis", "database:\n  url: \"postgres://x\"\nyoutube:\n  api_key: \"k\"\n"},
		{"missing youtube key", "database:\n  url: \"postgres://x\"\nredis:\n  url: \"localhost:6379\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.body), false); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadConfig_DevSkipsYouTubeKey(t *testing.T) {
	t.Parallel()

	body := "database:\n  url: \"postgres://x\"\nredis:\n  url: \"localhost:6379\"\n"
	cfg, err := LoadConfig(writeConfig(t, body), true)
	if err != nil {
		t.Fatalf("dev mode must not require the api key: %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Fatalf("dev flag not recorded")
	}
}

func TestLoadConfig_RuleTablesParsed(t *testing.T) {
	t.Parallel()

	body := minimalYAML + `
analysis:
  exclusion_rules:
    - token: "piggy"
  brand_rules:
    - name: "family"
      weight: 2
      keywords: ["family"]
      unless: ["horror"]
`
	cfg, err := LoadConfig(writeConfig(t, body), false)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Analysis.ExclusionRules) != 1 || cfg.Analysis.ExclusionRules[0].Token != "piggy" {
		t.Fatalf("exclusion rules not parsed: %+v", cfg.Analysis.ExclusionRules)
	}
	if len(cfg.Analysis.BrandRules) != 1 || cfg.Analysis.BrandRules[0].Weight != 2 {
		t.Fatalf("brand rules not parsed: %+v", cfg.Analysis.BrandRules)
	}
}
