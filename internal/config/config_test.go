package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RELAY_AUTH_SECRET", "k")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port=%d, want 8080", cfg.Port)
	}
	if cfg.Cache.TTL != 48*time.Hour {
		t.Fatalf("cache.ttl=%v, want 48h", cfg.Cache.TTL)
	}
	if cfg.Sweep.Interval != time.Hour {
		t.Fatalf("sweep.interval=%v, want 1h", cfg.Sweep.Interval)
	}
	if cfg.Auth.TokenLeeway != 60*time.Second {
		t.Fatalf("auth.token_leeway=%v, want 60s", cfg.Auth.TokenLeeway)
	}
	if cfg.Auth.Mode != AuthModeJWT {
		t.Fatalf("auth.mode=%q, want jwt", cfg.Auth.Mode)
	}
	if cfg.Backpressure != BackpressureDrop {
		t.Fatalf("backpressure=%q, want drop", cfg.Backpressure)
	}
	if cfg.SendBuffer != 256 {
		t.Fatalf("send_buffer=%d, want 256", cfg.SendBuffer)
	}
	if cfg.Rate.Messages != 100 || cfg.Rate.Window != time.Second {
		t.Fatalf("rate_limit=%+v, want 100/1s", cfg.Rate)
	}
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
port: 9090
auth:
  mode: shared_secret
  secret: from-file
cache:
  ttl: 2h
sweep:
  interval: 5m
`)
	t.Setenv("RELAY_AUTH_SECRET", "from-env")
	t.Setenv("RELAY_CACHE_MAX_CANDIDATES_PER_SENDER", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("port=%d, want 9090", cfg.Port)
	}
	if cfg.Auth.Mode != AuthModeSharedSecret {
		t.Fatalf("auth.mode=%q", cfg.Auth.Mode)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("auth.secret=%q, want env override", cfg.Auth.Secret)
	}
	if cfg.Cache.TTL != 2*time.Hour || cfg.Sweep.Interval != 5*time.Minute {
		t.Fatalf("durations not parsed: %+v %+v", cfg.Cache, cfg.Sweep)
	}
	if cfg.Cache.MaxCandidatesPerSender != 8 {
		t.Fatalf("max candidates=%d, want 8", cfg.Cache.MaxCandidatesPerSender)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "missing secret", body: "port: 8080\n", want: "auth.secret"},
		{name: "bad mode", body: "auth:\n  mode: none\n  secret: k\n", want: "auth.mode"},
		{name: "bad backpressure", body: "backpressure: block\nauth:\n  secret: k\n", want: "backpressure"},
		{name: "zero ttl", body: "cache:\n  ttl: 0s\nauth:\n  secret: k\n", want: "cache.ttl"},
		{name: "rate without window", body: "rate_limit:\n  messages: 5\n  window: 0s\nauth:\n  secret: k\n", want: "rate_limit.window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want mention of %q", err, tt.want)
			}
		})
	}
}
