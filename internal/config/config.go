// Package config loads bgpd's layered configuration: a YAML file
// overlaid by BGPD_-prefixed environment variables, exactly the way the
// teacher's config package layers RIB_INGESTER_ env vars over a YAML
// file, via koanf.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is bgpd's complete configuration tree (SPEC_FULL.md ยง7).
type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	BGP      BGPConfig      `koanf:"bgp"`
	Capture  CaptureConfig  `koanf:"capture"`
	Export   ExportConfig   `koanf:"export"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
}

// ServiceConfig is the ambient-stack block every package in this module
// shares: log level, metrics listen address, shutdown grace period.
type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// BGPConfig is spec ยง6's configuration interface.
type BGPConfig struct {
	ListenIP   string `koanf:"listen_ip"`
	ListenPort int    `koanf:"listen_port"`
	MaxPeers   int    `koanf:"max_peers"`
	LocalASN   uint32 `koanf:"local_asn"`
	RouterID   string `koanf:"router_id"`
	LogUpdates bool   `koanf:"log_updates"`
}

// CaptureConfig gates the optional raw-UPDATE diagnostic ring buffer
// (SPEC_FULL.md ยง3's klauspost/compress/zstd wiring).
type CaptureConfig struct {
	MaxEntries int  `koanf:"max_entries"`
	Compress   bool `koanf:"compress"`
}

// ExportConfig gates the optional Kafka route-event publisher
// (SPEC_FULL.md ยง3).
type ExportConfig struct {
	Kafka KafkaExportConfig `koanf:"kafka"`
}

type KafkaExportConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
}

// SnapshotConfig gates the optional Postgres RIB snapshot writer
// (SPEC_FULL.md ยง3).
type SnapshotConfig struct {
	Postgres PostgresSnapshotConfig `koanf:"postgres"`
}

type PostgresSnapshotConfig struct {
	DSN             string `koanf:"dsn"`
	IntervalSeconds int    `koanf:"interval_seconds"`
	MaxConns        int32  `koanf:"max_conns"`
}

// Load reads path (if non-empty) as YAML, overlays BGPD_-prefixed
// environment variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// BGPD_BGP__LOCAL_ASN -> bgp.local_asn
	if err := k.Load(env.Provider("BGPD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPD_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "bgpd-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		BGP: BGPConfig{
			ListenPort: 179,
			MaxPeers:   1,
		},
		Capture: CaptureConfig{
			MaxEntries: 0, // disabled by default
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Export.Kafka.Brokers) == 1 && strings.Contains(cfg.Export.Kafka.Brokers[0], ",") {
		cfg.Export.Kafka.Brokers = strings.Split(cfg.Export.Kafka.Brokers[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required fields spec ยง6 names and every
// domain-stack extension's self-consistency.
func (c *Config) Validate() error {
	if c.BGP.LocalASN == 0 {
		return fmt.Errorf("config: bgp.local_asn is required")
	}
	if c.BGP.RouterID == "" {
		return fmt.Errorf("config: bgp.router_id is required")
	}
	if ip := net.ParseIP(c.BGP.RouterID); ip == nil || ip.To4() == nil {
		return fmt.Errorf("config: bgp.router_id %q is not a valid IPv4 address", c.BGP.RouterID)
	}
	if c.BGP.LocalASN > 0xFFFF {
		// A 4-byte-AS local ASN is only usable against peers that
		// advertise the capability; this core cannot know that until
		// OPEN, so it is a runtime Unsupported outcome (spec ยง7), not
		// a config-time error. Recorded here only as a warning-level
		// fact, surfaced at startup by the caller's log line.
	}
	if c.BGP.ListenPort <= 0 || c.BGP.ListenPort > 65535 {
		return fmt.Errorf("config: bgp.listen_port %d out of range", c.BGP.ListenPort)
	}
	if c.BGP.MaxPeers <= 0 {
		return fmt.Errorf("config: bgp.max_peers must be > 0 (got %d)", c.BGP.MaxPeers)
	}
	if c.Capture.MaxEntries < 0 {
		return fmt.Errorf("config: capture.max_entries must be >= 0 (got %d)", c.Capture.MaxEntries)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if c.Export.Kafka.Enabled {
		if len(c.Export.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: export.kafka.brokers is required when export.kafka.enabled")
		}
		if c.Export.Kafka.Topic == "" {
			return fmt.Errorf("config: export.kafka.topic is required when export.kafka.enabled")
		}
	}
	if c.Snapshot.Postgres.DSN != "" && c.Snapshot.Postgres.IntervalSeconds <= 0 {
		return fmt.Errorf("config: snapshot.postgres.interval_seconds must be > 0 when snapshot.postgres.dsn is set")
	}
	return nil
}

// ListenAddr renders the bgp.listen_ip/listen_port pair as a host:port
// string for net.Listen, defaulting to all interfaces per spec ยง6.
func (c *BGPConfig) ListenAddr() string {
	return net.JoinHostPort(c.ListenIP, strconv.Itoa(c.ListenPort))
}
