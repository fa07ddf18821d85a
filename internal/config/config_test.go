package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  host: 0.0.0.0
  server_version: "8.0.0-hchdb"
  ports:
    mysql: 3306
    management: 3307
    internal: 3308
    xprotocol: 33060

connection:
  pool:
    max_connections: 50
    idle_timeout: 5m

authentication:
  users:
    root:
      password: ""
    alice:
      password: secret

logging:
  level: debug
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Ports.MySQL != 3306 {
		t.Errorf("expected mysql port 3306, got %d", cfg.Server.Ports.MySQL)
	}
	if cfg.Connection.Pool.MaxConnections != 50 {
		t.Errorf("expected max connections 50, got %d", cfg.Connection.Pool.MaxConnections)
	}
	if cfg.Connection.Pool.IdleTimeout != 5*time.Minute {
		t.Errorf("expected idle timeout 5m, got %v", cfg.Connection.Pool.IdleTimeout)
	}

	passwords := cfg.Passwords()
	if pw, ok := passwords["alice"]; !ok || pw != "secret" {
		t.Errorf("expected alice's password to be 'secret', got %q (ok=%v)", pw, ok)
	}
	if pw, ok := passwords["root"]; !ok || pw != "" {
		t.Errorf("expected root's password to be empty, got %q (ok=%v)", pw, ok)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "server:\n  host: 127.0.0.1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ServerVersion != "8.0.0-hchdb" {
		t.Errorf("expected default server version, got %q", cfg.Server.ServerVersion)
	}
	if cfg.Server.Ports.MySQL != 3306 {
		t.Errorf("expected default mysql port 3306, got %d", cfg.Server.Ports.MySQL)
	}
	if cfg.Server.Ports.Admin != 9090 {
		t.Errorf("expected default admin port 9090, got %d", cfg.Server.Ports.Admin)
	}
	if cfg.Connection.Pool.MaxConnections != 100 {
		t.Errorf("expected default max connections 100, got %d", cfg.Connection.Pool.MaxConnections)
	}
	if cfg.Connection.Pool.IdleTimeout != 300*time.Second {
		t.Errorf("expected default idle timeout 300s, got %v", cfg.Connection.Pool.IdleTimeout)
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	os.Setenv("HCHDB_TEST_PASSWORD", "from-env")
	defer os.Unsetenv("HCHDB_TEST_PASSWORD")

	path := writeTemp(t, "authentication:\n  users:\n    root:\n      password: ${HCHDB_TEST_PASSWORD}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Authentication.Users["root"].Password != "from-env" {
		t.Errorf("expected env substitution, got %q", cfg.Authentication.Users["root"].Password)
	}
}

func TestLoadParsesPerModuleLoggerOverrides(t *testing.T) {
	path := writeTemp(t, "logging:\n  level: info\n  loggers:\n    session: debug\n    connmgr: warn\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Loggers["session"] != "debug" {
		t.Errorf("expected session override 'debug', got %q", cfg.Logging.Loggers["session"])
	}
	if cfg.Logging.Loggers["connmgr"] != "warn" {
		t.Errorf("expected connmgr override 'warn', got %q", cfg.Logging.Loggers["connmgr"])
	}
}

func TestLoadRejectsInvalidMaxConnections(t *testing.T) {
	path := writeTemp(t, "connection:\n  pool:\n    max_connections: 0\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for max_connections=0, got nil")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTemp(t, "logging:\n  level: info\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloaded <- cfg
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected reloaded level 'debug', got %q", cfg.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
