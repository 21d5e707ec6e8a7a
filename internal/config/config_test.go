package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("Validate: %v", errs)
	}
	if cfg.Curation.CacheDuration() != 300*time.Second {
		t.Errorf("CacheDuration = %v, want 5m", cfg.Curation.CacheDuration())
	}
	if cfg.Curation.BatchSize != 8 {
		t.Errorf("BatchSize = %d, want 8", cfg.Curation.BatchSize)
	}
	if cfg.ListenAddr() != "0.0.0.0:8000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr())
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	if cfg.Curation.DecayFactor != 0.3 || cfg.Curation.RecoveryFactor != 0.2 {
		t.Errorf("factors = %v/%v, want 0.3/0.2", cfg.Curation.DecayFactor, cfg.Curation.RecoveryFactor)
	}
	if len(cfg.Taxonomy.Terms) == 0 {
		t.Error("expected default taxonomy terms")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
curation:
  cache_duration_seconds: 60
  batch_size: 4
taxonomy:
  categories:
    ops: 2
  terms:
    - name: "#devops"
      category: ops
    - name: "#sre"
      category: ops
`)
	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Bind != "0.0.0.0" {
		t.Errorf("Bind = %q, want default kept", cfg.Server.Bind)
	}
	if cfg.Curation.CacheDurationSeconds != 60 || cfg.Curation.BatchSize != 4 {
		t.Errorf("curation = %+v", cfg.Curation)
	}
	if cfg.Curation.DefaultLimit != 50 {
		t.Errorf("DefaultLimit = %d, want default 50", cfg.Curation.DefaultLimit)
	}
	if len(cfg.Taxonomy.Terms) != 2 || cfg.Taxonomy.Terms[0].Name != "#devops" {
		t.Errorf("terms = %+v, want file terms only", cfg.Taxonomy.Terms)
	}
	if cfg.Taxonomy.Categories["ops"] != 2 {
		t.Errorf("ops category = %v, want 2", cfg.Taxonomy.Categories["ops"])
	}
	if cfg.Taxonomy.Categories["programming"] == 0 {
		t.Error("default categories should be kept")
	}
}

func TestLoadDottedMultiplierKey(t *testing.T) {
	path := writeConfig(t, `
taxonomy:
  multipliers:
    "#node.js": 2.5
  terms:
    - name: "#node.js"
      category: programming
`)
	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	if got := cfg.Taxonomy.Multiplier("#node.js"); got != 2.5 {
		t.Errorf("Multiplier(#node.js) = %v, want 2.5", got)
	}
	if len(cfg.Taxonomy.Terms) != 1 || cfg.Taxonomy.Terms[0].Name != "#node.js" {
		t.Errorf("terms = %+v", cfg.Taxonomy.Terms)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, errs := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want one load error", errs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("BLUESKY_USERNAME", "alice.bsky.social")
	t.Setenv("BLUESKY_PASSWORD", "app-password")
	t.Setenv("FEEDGEN_ENV", "production")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Bluesky.Identifier != "alice.bsky.social" || cfg.Bluesky.Password != "app-password" {
		t.Errorf("bluesky = %+v", cfg.Bluesky)
	}
	if cfg.Log.Env != "production" {
		t.Errorf("Env = %q, want production", cfg.Log.Env)
	}
}

func TestEnvInvalidPort(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, errs := Load("")
	found := false
	for _, err := range errs {
		if errors.Is(err, ErrInvalidPort) {
			found = true
		}
	}
	if !found {
		t.Errorf("errs = %v, want ErrInvalidPort", errs)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Curation.DecayFactor = 1.5
	cfg.Curation.DefaultLimit = 500
	cfg.Feed.ServiceDID = "web:nope"
	cfg.Taxonomy.Terms = nil

	errs := cfg.Validate()
	want := []error{ErrInvalidDecay, ErrInvalidLimits, ErrInvalidServiceDID, ErrEmptyTaxonomy}
	for _, w := range want {
		found := false
		for _, err := range errs {
			if errors.Is(err, w) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %v in %v", w, errs)
		}
	}
}

func TestFeedPublisher(t *testing.T) {
	f := Default().Feed
	if got := f.Publisher(); got != f.ServiceDID {
		t.Errorf("Publisher = %q, want service did %q", got, f.ServiceDID)
	}
	f.PublisherDID = "did:plc:alice"
	if got := f.Publisher(); got != "did:plc:alice" {
		t.Errorf("Publisher = %q, want did:plc:alice", got)
	}
}
