// Package config loads and hot-reloads the server's YAML configuration:
// listen ports, the server version string advertised in the handshake,
// connection-pool limits, and the static authentication users table.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for hchdb.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Connection     ConnectionConfig     `yaml:"connection"`
	Authentication AuthenticationConfig `yaml:"authentication"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// ServerConfig holds the bind address, per-protocol ports, and the
// version string the handshake advertises.
type ServerConfig struct {
	Host          string      `yaml:"host"`
	Ports         PortsConfig `yaml:"ports"`
	ServerVersion string      `yaml:"server_version"`
}

// PortsConfig enumerates the four listener ports this server exposes.
type PortsConfig struct {
	MySQL      int `yaml:"mysql"`
	Management int `yaml:"management"`
	Internal   int `yaml:"internal"`
	XProtocol  int `yaml:"xprotocol"`
	Admin      int `yaml:"admin"`
}

// ConnectionConfig holds the connection manager's admission and idle
// policy.
type ConnectionConfig struct {
	Pool PoolConfig `yaml:"pool"`
}

// PoolConfig bounds concurrent connections and idle lifetime.
type PoolConfig struct {
	MaxConnections int           `yaml:"max_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

// AuthenticationConfig holds the static users table consulted by
// session.UsersRegistry.
type AuthenticationConfig struct {
	Users map[string]UserConfig `yaml:"users"`
}

// UserConfig is one entry in the users table. An empty password accepts
// any credential unconditionally.
type UserConfig struct {
	Password string `yaml:"password"`
}

// LoggingConfig controls the slog handler's minimum level. Loggers holds
// per-package overrides (e.g. "session": "debug") layered over Level.
type LoggingConfig struct {
	Level   string            `yaml:"level"`
	Loggers map[string]string `yaml:"loggers"`
}

// Passwords flattens the authentication table into the plain map
// session.NewUsersRegistry expects.
func (c *Config) Passwords() map[string]string {
	out := make(map[string]string, len(c.Authentication.Users))
	for name, u := range c.Authentication.Users {
		out[name] = u.Password
	}
	return out
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment
// variable values, leaving the pattern untouched when the variable is
// unset.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution,
// applies defaults, then validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.ServerVersion == "" {
		cfg.Server.ServerVersion = "8.0.0-hchdb"
	}
	if cfg.Server.Ports.MySQL == 0 {
		cfg.Server.Ports.MySQL = 3306
	}
	if cfg.Server.Ports.Management == 0 {
		cfg.Server.Ports.Management = 3307
	}
	if cfg.Server.Ports.Internal == 0 {
		cfg.Server.Ports.Internal = 3308
	}
	if cfg.Server.Ports.XProtocol == 0 {
		cfg.Server.Ports.XProtocol = 33060
	}
	if cfg.Server.Ports.Admin == 0 {
		cfg.Server.Ports.Admin = 9090
	}
	if cfg.Connection.Pool.MaxConnections == 0 {
		cfg.Connection.Pool.MaxConnections = 100
	}
	if cfg.Connection.Pool.IdleTimeout == 0 {
		cfg.Connection.Pool.IdleTimeout = 300 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// ApplyEnvOverrides applies the HCHDB_* environment overrides documented
// for this server, run after Load so the file and env are both honored
// with env taking precedence.
func ApplyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("HCHDB_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := os.LookupEnv("HCHDB_MYSQL_PORT"); ok {
		if port, err := parsePort(v); err == nil {
			cfg.Server.Ports.MySQL = port
		}
	}
	if v, ok := os.LookupEnv("HCHDB_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("HCHDB_MAX_CONNECTIONS"); ok {
		if n, err := parsePort(v); err == nil {
			cfg.Connection.Pool.MaxConnections = n
		}
	}
	if v, ok := os.LookupEnv("HCHDB_DEBUG"); ok && (v == "1" || v == "true") {
		cfg.Logging.Level = "debug"
	}
}

func parsePort(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func validate(cfg *Config) error {
	if cfg.Connection.Pool.MaxConnections <= 0 {
		return fmt.Errorf("connection.pool.max_connections must be positive, got %d", cfg.Connection.Pool.MaxConnections)
	}
	if cfg.Connection.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("connection.pool.idle_timeout must be positive, got %s", cfg.Connection.Pool.IdleTimeout)
	}
	for _, port := range []int{cfg.Server.Ports.MySQL, cfg.Server.Ports.Management, cfg.Server.Ports.Internal, cfg.Server.Ports.XProtocol, cfg.Server.Ports.Admin} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
	}
	return nil
}

// Watcher watches the config file for changes and invokes callback with
// the freshly reloaded Config, debounced against rapid successive writes.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a Watcher on path. Env overrides are re-applied on
// every reload so they continue to take precedence over the file.
func NewWatcher(path string, callback func(*Config), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher error", "error", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		cw.logger.Error("config hot-reload failed", "error", err)
		return
	}
	ApplyEnvOverrides(cfg)

	cw.logger.Info("configuration reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
