package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != "8080" {
		t.Errorf("server defaults = %s:%s", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Generate.Workers != 4 {
		t.Errorf("workers = %d", cfg.Generate.Workers)
	}
	if cfg.Generate.BatchSize != 10 {
		t.Errorf("batch size = %d", cfg.Generate.BatchSize)
	}
	if cfg.Generate.PageTimeout != 60*time.Second {
		t.Errorf("page timeout = %s", cfg.Generate.PageTimeout)
	}
	if cfg.Generate.JobTTL != 720*time.Hour {
		t.Errorf("job ttl = %s", cfg.Generate.JobTTL)
	}
	if cfg.Storage.Bucket != "folio" {
		t.Errorf("bucket = %s", cfg.Storage.Bucket)
	}
	// Optional backends default off.
	if cfg.Events.URL != "" || cfg.Cache.Addr != "" {
		t.Errorf("optional backends enabled by default: events=%q cache=%q", cfg.Events.URL, cfg.Cache.Addr)
	}
}

func TestResolveEnvVars(t *testing.T) {
	os.Setenv("FOLIO_TEST_SECRET", "s3cret")
	defer os.Unsetenv("FOLIO_TEST_SECRET")

	tests := []struct {
		in   string
		want string
	}{
		{"${FOLIO_TEST_SECRET}", "s3cret"},
		{"prefix-${FOLIO_TEST_SECRET}-suffix", "prefix-s3cret-suffix"},
		{"no-vars", "no-vars"},
		{"", ""},
		{"${FOLIO_TEST_UNSET_VAR}", ""},
	}
	for _, tt := range tests {
		if got := ResolveEnvVars(tt.in); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
