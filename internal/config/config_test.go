package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		BGP: BGPConfig{
			ListenPort: 179,
			MaxPeers:   1,
			LocalASN:   65000,
			RouterID:   "10.0.0.1",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_MissingLocalASN(t *testing.T) {
	cfg := validConfig()
	cfg.BGP.LocalASN = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing local_asn")
	}
}

func TestValidate_MissingRouterID(t *testing.T) {
	cfg := validConfig()
	cfg.BGP.RouterID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing router_id")
	}
}

func TestValidate_InvalidRouterID(t *testing.T) {
	cfg := validConfig()
	cfg.BGP.RouterID = "not-an-ip"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid router_id")
	}
}

func TestValidate_InvalidListenPort(t *testing.T) {
	cfg := validConfig()
	cfg.BGP.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range listen_port")
	}
}

func TestValidate_MaxPeersMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.BGP.MaxPeers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive max_peers")
	}
}

func TestValidate_KafkaExportRequiresBrokersAndTopic(t *testing.T) {
	cfg := validConfig()
	cfg.Export.Kafka.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled export.kafka without brokers/topic")
	}
	cfg.Export.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Export.Kafka.Topic = "route-events"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config once brokers/topic set, got: %v", err)
	}
}

func TestValidate_SnapshotRequiresInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Snapshot.Postgres.DSN = "postgres://localhost/bgpd"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for snapshot dsn without interval_seconds")
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bgpd.yaml")
	yamlContent := `
service:
  instance_id: bgpd-test
bgp:
  listen_port: 1790
  max_peers: 4
  local_asn: 65010
  router_id: 192.0.2.1
  log_updates: true
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BGP.LocalASN != 65010 {
		t.Fatalf("expected local_asn 65010, got %d", cfg.BGP.LocalASN)
	}
	if cfg.BGP.ListenPort != 1790 {
		t.Fatalf("expected listen_port 1790, got %d", cfg.BGP.ListenPort)
	}
	if !cfg.BGP.LogUpdates {
		t.Fatalf("expected log_updates true")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := BGPConfig{ListenIP: "", ListenPort: 179}
	if got, want := cfg.ListenAddr(), ":179"; got != want {
		t.Fatalf("ListenAddr() = %q, want %q", got, want)
	}
}
