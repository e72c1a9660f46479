package config

import (
	"os"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want text", cfg.LogFormat)
	}
}

func TestParse_Valid(t *testing.T) {
	data := []byte(`
log_level: debug
listeners:
  - name: auth
    bind_address: "0.0.0.0:1812"
    clients:
      - address: "192.0.2.1"
upstreams:
  - name: aaa1
    address: "198.51.100.1:1812"
    retry_count: 3
    retry_interval: 5s
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Name != "auth" {
		t.Fatalf("Listeners = %+v", cfg.Listeners)
	}
	if len(cfg.Upstreams) != 1 || cfg.Upstreams[0].Name != "aaa1" {
		t.Fatalf("Upstreams = %+v", cfg.Upstreams)
	}
}

func TestParse_InvalidBindAddress(t *testing.T) {
	data := []byte(`
listeners:
  - name: auth
    bind_address: "not a valid address!!"
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected an error for an invalid bind_address")
	}
}

func TestParse_DuplicateListenerName(t *testing.T) {
	data := []byte(`
listeners:
  - name: auth
    bind_address: "0.0.0.0:1812"
  - name: auth
    bind_address: "0.0.0.0:1813"
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected an error for duplicate listener names")
	}
}

func TestParse_RetryCountOutOfRange(t *testing.T) {
	data := []byte(`
upstreams:
  - name: aaa1
    address: "198.51.100.1:1812"
    retry_count: 99
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected an error for retry_count above the maximum")
	}
}

func TestParse_EnvVarExpansion(t *testing.T) {
	os.Setenv("RADIUS_TEST_BIND", "0.0.0.0:1812")
	defer os.Unsetenv("RADIUS_TEST_BIND")

	data := []byte(`
listeners:
  - name: auth
    bind_address: "${RADIUS_TEST_BIND}"
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Listeners[0].BindAddress != "0.0.0.0:1812" {
		t.Errorf("BindAddress = %q, want expanded value", cfg.Listeners[0].BindAddress)
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	os.Unsetenv("RADIUS_TEST_UNSET")

	data := []byte(`
listeners:
  - name: auth
    bind_address: "${RADIUS_TEST_UNSET:-0.0.0.0:1812}"
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Listeners[0].BindAddress != "0.0.0.0:1812" {
		t.Errorf("BindAddress = %q, want the default fallback", cfg.Listeners[0].BindAddress)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
