package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	f.Close()
	return f.Name()
}

// clearEnv keeps the developer's environment out of the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PLACESYNC_API_KEY", "PLACESYNC_PROJECT_ID", "PLACESYNC_CREDENTIALS_FILE"} {
		t.Setenv(k, "")
	}
}

const minimal = `
project_id: "places-prod"
api_key: "AIza-test"
`

func TestLoad_Valid(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
project_id: "places-prod"
api_key: "AIza-test"
credentials_file: "/etc/placesync/sa.json"
auth_endpoint: "http://localhost:9099/identitytoolkit.googleapis.com"
request_timeout: 5s
refresh_interval: 10m
ledger_path: "/var/lib/placesync/ledger.db"
purge_dependents: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProjectID != "places-prod" {
		t.Errorf("ProjectID = %q, want %q", cfg.ProjectID, "places-prod")
	}
	if cfg.APIKey != "AIza-test" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "AIza-test")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.RefreshInterval != 10*time.Minute {
		t.Errorf("RefreshInterval = %v, want 10m", cfg.RefreshInterval)
	}
	if !cfg.PurgeDependents {
		t.Error("PurgeDependents = false, want true")
	}
	if cfg.LedgerPath != "/var/lib/placesync/ledger.db" {
		t.Errorf("LedgerPath = %q", cfg.LedgerPath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want default %v", cfg.RequestTimeout, DefaultRequestTimeout)
	}
	if cfg.RefreshInterval != 0 {
		t.Errorf("RefreshInterval = %v, want 0 (disabled)", cfg.RefreshInterval)
	}
	if cfg.Telemetry != nil {
		t.Error("expected Telemetry to be nil when block is omitted")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"missing project", `api_key: "k"`, "project_id"},
		{"missing api key", `project_id: "p"`, "api_key"},
		{"bad auth endpoint", minimal + `auth_endpoint: "not-a-url"`, "auth_endpoint"},
		{"negative timeout", minimal + `request_timeout: -1s`, "request_timeout"},
		{"refresh too short", minimal + `refresh_interval: 5s`, "too short"},
		{"refresh too long", minimal + `refresh_interval: 48h`, "too long"},
		{"unknown key", minimal + `unknown_field: oops`, "unknown_field"},
		{"telemetry without endpoint", minimal + "telemetry:\n  insecure: true\n", "otlp_endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLACESYNC_API_KEY", "from-env")
	t.Setenv("PLACESYNC_CREDENTIALS_FILE", "/run/secrets/sa.json")

	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override", cfg.APIKey)
	}
	if cfg.CredentialsFile != "/run/secrets/sa.json" {
		t.Errorf("CredentialsFile = %q, want env override", cfg.CredentialsFile)
	}
	if cfg.ProjectID != "places-prod" {
		t.Errorf("ProjectID = %q, want file value", cfg.ProjectID)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLACESYNC_API_KEY", "k")
	t.Setenv("PLACESYNC_PROJECT_ID", "p")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProjectID != "p" || cfg.APIKey != "k" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file without environment, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PLACESYNC_API_KEY", "k")
	t.Setenv("PLACESYNC_PROJECT_ID", "p")
	if _, err := Load(writeConfig(t, "")); err != nil {
		t.Fatalf("empty file with environment: %v", err)
	}
}

func TestLoad_TelemetryHeaders(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, minimal+`
telemetry:
  otlp_endpoint: "otelcol.example.com:4317"
  service_name: "placesync-cli"
  headers:
    Authorization: "Bearer secret"
    x-dataset: "test"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry == nil {
		t.Fatal("expected Telemetry to be non-nil")
	}
	if cfg.Telemetry.ServiceName != "placesync-cli" {
		t.Errorf("ServiceName = %q", cfg.Telemetry.ServiceName)
	}
	if len(cfg.Telemetry.Headers) != 2 {
		t.Fatalf("Headers len = %d, want 2", len(cfg.Telemetry.Headers))
	}
	if cfg.Telemetry.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("Authorization header = %q, want %q", cfg.Telemetry.Headers["Authorization"], "Bearer secret")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	in := &Config{ProjectID: "p", APIKey: "k", RefreshInterval: 15 * time.Minute}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.RefreshInterval != 15*time.Minute || out.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("round trip = %+v", out)
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("placesync", "config.yaml")) {
		t.Errorf("DefaultPath = %q", path)
	}
}
