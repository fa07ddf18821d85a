// Command hchdb runs the MySQL protocol server: four listeners (mysql,
// management, internal, xprotocol), the connection manager, and an admin
// HTTP surface for status and metrics.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hchdb/hchdb/internal/adminapi"
	"github.com/hchdb/hchdb/internal/config"
	"github.com/hchdb/hchdb/internal/connmgr"
	"github.com/hchdb/hchdb/internal/listener"
	"github.com/hchdb/hchdb/internal/metrics"
	"github.com/hchdb/hchdb/internal/session"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/hchdb.yaml", "path to configuration file")
	host := flag.String("host", "", "override server.host")
	port := flag.Int("port", 0, "override server.ports.mysql")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	config.ApplyEnvOverrides(cfg)

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Ports.MySQL = *port
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	setLogLevel(logLevel, cfg.Logging.Level)

	logger.Info("hchdb starting",
		"server_version", cfg.Server.ServerVersion,
		"host", cfg.Server.Host,
		"mysql_port", cfg.Server.Ports.MySQL,
		"max_connections", cfg.Connection.Pool.MaxConnections,
	)

	collector := metrics.New()
	users := session.NewUsersRegistry(cfg.Passwords())

	sessionLogger := componentLogger(cfg.Logging.Level, cfg.Logging.Loggers, "session")
	connmgrLogger := componentLogger(cfg.Logging.Level, cfg.Logging.Loggers, "connmgr")
	listenerLogger := componentLogger(cfg.Logging.Level, cfg.Logging.Loggers, "listener")
	adminLogger := componentLogger(cfg.Logging.Level, cfg.Logging.Loggers, "adminapi")

	sessionFactory := func(conn net.Conn, id uint32, activity session.ActivityRecorder) interface {
		Run()
		Close() error
	} {
		return session.New(conn, id, cfg.Server.ServerVersion, cfg.Connection.Pool.MaxConnections, users, nil, activity, collector, sessionLogger)
	}

	manager := connmgr.New(cfg.Connection.Pool.MaxConnections, cfg.Connection.Pool.IdleTimeout, sessionFactory, collector, connmgrLogger)
	manager.StartReaper()

	listenServer := listener.New(manager, listenerLogger)
	if err := listenServer.ListenEngine(cfg.Server.Host, cfg.Server.Ports.MySQL, "mysql"); err != nil {
		logger.Error("failed to start mysql listener", "error", err)
		os.Exit(1)
	}
	if err := listenServer.ListenEngine(cfg.Server.Host, cfg.Server.Ports.Management, "management"); err != nil {
		logger.Error("failed to start management listener", "error", err)
		os.Exit(1)
	}
	if err := listenServer.ListenStub(cfg.Server.Host, cfg.Server.Ports.Internal, "internal"); err != nil {
		logger.Error("failed to start internal listener", "error", err)
		os.Exit(1)
	}
	if err := listenServer.ListenStub(cfg.Server.Host, cfg.Server.Ports.XProtocol, "xprotocol"); err != nil {
		logger.Error("failed to start xprotocol listener", "error", err)
		os.Exit(1)
	}

	adminServer := adminapi.New(manager, collector, adminLogger)
	if err := adminServer.Start(cfg.Server.Host, cfg.Server.Ports.Admin); err != nil {
		logger.Error("failed to start admin api", "error", err)
		os.Exit(1)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		users.Reload(newCfg.Passwords())
	}, logger)
	if err != nil {
		logger.Warn("config hot-reload not available", "error", err)
	}

	logger.Info("hchdb ready",
		"mysql_port", cfg.Server.Ports.MySQL,
		"management_port", cfg.Server.Ports.Management,
		"internal_port", cfg.Server.Ports.Internal,
		"xprotocol_port", cfg.Server.Ports.XProtocol,
		"admin_port", cfg.Server.Ports.Admin,
	)
	printBanner(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	if configWatcher != nil {
		configWatcher.Stop()
	}
	if err := adminServer.Stop(); err != nil {
		logger.Warn("admin api shutdown error", "error", err)
	}
	listenServer.Stop()
	manager.Stop()

	logger.Info("hchdb stopped")
}

func setLogLevel(v *slog.LevelVar, level string) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}

// componentLogger builds a logger for one package, honoring its
// logging.loggers override if the config names one, falling back to the
// global level otherwise. Each component gets its own LevelVar so a
// running process can't have one package's verbosity bleed into another's.
func componentLogger(globalLevel string, overrides map[string]string, component string) *slog.Logger {
	level := globalLevel
	if override, ok := overrides[component]; ok {
		level = override
	}
	v := new(slog.LevelVar)
	setLogLevel(v, level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: v})).With("component", component)
}

// printBanner prints the bound addresses and a sample client invocation
// once startup completes, mirroring the connection hint the original
// server prints after it comes up.
func printBanner(cfg *config.Config) {
	dialHost := cfg.Server.Host
	if dialHost == "0.0.0.0" {
		dialHost = "127.0.0.1"
	}

	fmt.Println()
	fmt.Println("hchdb is up:")
	fmt.Printf("  mysql        %s:%d\n", cfg.Server.Host, cfg.Server.Ports.MySQL)
	fmt.Printf("  management   %s:%d\n", cfg.Server.Host, cfg.Server.Ports.Management)
	fmt.Printf("  admin        http://%s:%d/status\n", dialHost, cfg.Server.Ports.Admin)
	fmt.Println()
	fmt.Printf("  mysql -h %s -P %d -u root\n", dialHost, cfg.Server.Ports.MySQL)
	fmt.Println()
}
