package config

import (
	"testing"
)

func testConfig() Config {
	var cfg Config
	cfg.Sources = []SourceConfig{
		{Name: "alpha-portal", Enabled: true, Strategies: []string{"export", "markup"}},
		{Name: "beta-portal", Enabled: false},
		{Name: "gamma-portal", Enabled: true},
	}
	return cfg
}

func TestGetSource(t *testing.T) {
	if err := applyConfigUpdate(testConfig(), configUpdateOptions{}); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	src, ok := GetSource("alpha-portal")
	if !ok {
		t.Fatal("expected alpha-portal to be found")
	}
	if len(src.Strategies) != 2 {
		t.Fatalf("strategies = %v, want 2 entries", src.Strategies)
	}

	// Lookup is case-insensitive.
	if _, ok := GetSource("ALPHA-PORTAL"); !ok {
		t.Fatal("source lookup should ignore case")
	}

	if _, ok := GetSource("missing"); ok {
		t.Fatal("unknown source must not resolve")
	}
}

func TestEnabledSourcesKeepsConfigOrder(t *testing.T) {
	if err := applyConfigUpdate(testConfig(), configUpdateOptions{}); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	enabled := EnabledSources()
	if len(enabled) != 2 {
		t.Fatalf("enabled sources = %d, want 2", len(enabled))
	}
	if enabled[0].Name != "alpha-portal" || enabled[1].Name != "gamma-portal" {
		t.Fatalf("unexpected order: %s, %s", enabled[0].Name, enabled[1].Name)
	}
}

func TestGetCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("KESTREL_ALPHA_PORTAL_USERNAME", "collector")
	t.Setenv("KESTREL_ALPHA_PORTAL_PASSWORD", "hunter2")

	creds := GetCredentials("alpha-portal")
	if creds.Username != "collector" || creds.Password != "hunter2" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	empty := GetCredentials("never-configured")
	if empty.Username != "" || empty.Password != "" {
		t.Fatalf("expected empty credentials, got %+v", empty)
	}
}
