package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.GRPC.Port != 9090 {
		t.Errorf("ports: got %d/%d", cfg.Server.HTTPPort, cfg.GRPC.Port)
	}
	if cfg.Ledger.Backend != "memory" {
		t.Errorf("ledger backend: got %q", cfg.Ledger.Backend)
	}
	if cfg.AuthEnabled() {
		t.Error("auth should be disabled by default")
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("token ttl: got %v", cfg.Auth.TokenTTL)
	}
	if cfg.ConfigFile != "" {
		t.Errorf("no config file expected, got %q", cfg.ConfigFile)
	}
}

func TestLoad_fileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := []byte(`
server:
  http_port: 9000
kafka:
  brokers: [k1:9092]
cache:
  ttl: 5m
`)
	if err := os.WriteFile(filepath.Join(dir, "threatd.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("THREATLENS_SERVER_HTTP_PORT", "9100")
	t.Setenv("THREATLENS_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("THREATLENS_WEBHOOKS_URLS", "https://hooks.example/a,https://hooks.example/b")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9100 {
		t.Errorf("env should override file: got %d", cfg.Server.HTTPPort)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "k1:9092" {
		t.Errorf("brokers: got %v", cfg.Kafka.Brokers)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache ttl: got %v", cfg.Cache.TTL)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins: got %v", cfg.Server.CORSOrigins)
	}
	if len(cfg.Webhooks.URLs) != 2 {
		t.Errorf("webhook urls: got %v", cfg.Webhooks.URLs)
	}
	if cfg.ConfigFile == "" {
		t.Error("expected config file to be reported")
	}
}

func TestLoad_dotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("THREATLENS_KAFKA_TOPIC=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("THREATLENS_KAFKA_TOPIC") })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Kafka.Topic != "from-dotenv" {
		t.Errorf("topic: got %q", cfg.Kafka.Topic)
	}
}

func TestLoad_validation(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("THREATLENS_LEDGER_BACKEND", "postgres")
	if _, err := Load(""); err == nil {
		t.Error("postgres ledger without database url should fail")
	}

	t.Setenv("THREATLENS_LEDGER_BACKEND", "memory")
	t.Setenv("THREATLENS_AUTH_SECRET", "short")
	if _, err := Load(""); err == nil {
		t.Error("short auth secret should fail")
	}
}
