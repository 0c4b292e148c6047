// Command bgpd runs the passive BGP-4 speaker described in spec ยง1: it
// accepts one peer connection at a time, negotiates OPEN, and applies
// UPDATE messages to an in-memory RIB, optionally exporting route
// events to Kafka and snapshotting the RIB to Postgres.
package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/bgpd/internal/config"
	"github.com/route-beacon/bgpd/internal/db"
	"github.com/route-beacon/bgpd/internal/httpapi"
	"github.com/route-beacon/bgpd/internal/kafka"
	"github.com/route-beacon/bgpd/internal/metrics"
	"github.com/route-beacon/bgpd/internal/session"
	"github.com/route-beacon/bgpd/internal/snapshot"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "validate-config":
		runValidateConfig()
	case "migrate":
		runMigrate()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve             Start the BGP speaker")
	fmt.Println("  validate-config   Load and validate a configuration file, then exit")
	fmt.Println("  migrate           Run snapshot database migrations")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

// migrationsDir returns the path to the migrations directory relative to
// the binary, so a deployed bgpd finds its own migrations without a
// working-directory dependency.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	if cfg.Snapshot.Postgres.DSN == "" {
		logger.Fatal("snapshot.postgres.dsn is not configured; nothing to migrate")
	}

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Snapshot.Postgres.DSN)))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Snapshot.Postgres.DSN, cfg.Snapshot.Postgres.MaxConns, 0)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("migrations complete")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runValidateConfig() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()
	logger.Info("config is valid",
		zap.Uint32("local_asn", cfg.BGP.LocalASN),
		zap.String("router_id", cfg.BGP.RouterID),
		zap.String("listen_addr", cfg.BGP.ListenAddr()),
	)
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpd",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("http_listen", cfg.Service.HTTPListen),
		zap.String("bgp_listen", cfg.BGP.ListenAddr()),
		zap.Uint32("local_asn", cfg.BGP.LocalASN),
	)
	if cfg.BGP.LocalASN > 0xFFFF {
		logger.Warn("local_asn requires peers to advertise the 4-byte-AS capability; sessions from peers that don't will be rejected as unsupported")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exportProducer *kafka.Producer
	if cfg.Export.Kafka.Enabled {
		p, err := kafka.NewProducer(cfg.Export.Kafka.Brokers, cfg.Export.Kafka.Topic, cfg.Export.Kafka.ClientID, logger.Named("export"))
		if err != nil {
			logger.Fatal("failed to start kafka export producer", zap.Error(err))
		}
		exportProducer = p
		defer exportProducer.Close()
		logger.Info("route-event export enabled", zap.String("topic", cfg.Export.Kafka.Topic))
	}

	mgr := session.NewManager(session.ManagerConfig{
		ListenAddr: cfg.BGP.ListenAddr(),
		MaxPeers:   cfg.BGP.MaxPeers,
		Session: session.Config{
			LocalASN:          cfg.BGP.LocalASN,
			RouterID:          mustParseIP(cfg.BGP.RouterID),
			LogUpdates:        cfg.BGP.LogUpdates,
			CaptureMaxEntries: cfg.Capture.MaxEntries,
			CaptureCompress:   cfg.Capture.Compress,
			Export:            exportProducer,
		},
	}, logger.Named("session"))

	var snapWriter *snapshot.Writer
	if cfg.Snapshot.Postgres.DSN != "" {
		pool, err := db.NewPool(ctx, cfg.Snapshot.Postgres.DSN, cfg.Snapshot.Postgres.MaxConns, 0)
		if err != nil {
			logger.Fatal("failed to connect to snapshot database", zap.Error(err))
		}
		defer pool.Close()
		snapWriter = snapshot.NewWriter(pool, mgr, time.Duration(cfg.Snapshot.Postgres.IntervalSeconds)*time.Second, logger.Named("snapshot"))
		go func() {
			if err := snapWriter.Run(ctx); err != nil {
				logger.Error("snapshot writer stopped", zap.Error(err))
			}
		}()
		logger.Info("RIB snapshotting enabled", zap.Int("interval_seconds", cfg.Snapshot.Postgres.IntervalSeconds))
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- mgr.Serve(ctx) }()

	var dbChecker httpapi.DBChecker
	if snapWriter != nil {
		dbChecker = snapWriter
	}
	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, mgr, dbChecker, exportProducer, mgr, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("bgpd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("accept loop stopped unexpectedly", zap.Error(err))
		}
	}

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	cancel()

	select {
	case <-serveErr:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached before accept loop stopped")
	}

	logger.Info("bgpd stopped")
}

func mustParseIP(s string) (ip net.IP) {
	ip = net.ParseIP(s)
	return
}
