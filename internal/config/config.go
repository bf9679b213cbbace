// Package config loads threatlens settings from defaults, an optional
// threatd.yaml, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the resolved configuration of the threatlens binaries.
type Config struct {
	Server   ServerConfig
	GRPC     GRPCConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Auth     AuthConfig
	Kafka    KafkaConfig
	Webhooks WebhooksConfig
	Patterns PatternsConfig
	Cache    CacheConfig

	// ConfigFile is the file that was read, or "" when none was found.
	ConfigFile string
}

type ServerConfig struct {
	HTTPPort     int
	CORSOrigins  []string
	RateLimitRPS int
}

type GRPCConfig struct {
	Port        int
	GatewayPort int
}

type DatabaseConfig struct {
	URL string
}

// LedgerConfig selects the audit ledger backend: "memory" or "postgres".
type LedgerConfig struct {
	Backend string
}

// AuthConfig enables bearer tokens when Secret is set.
type AuthConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// WebhooksConfig enables signed HTTP callbacks when URLs is non-empty.
type WebhooksConfig struct {
	URLs   []string
	Secret string
}

// PatternsConfig names an optional YAML file of extra patterns.
type PatternsConfig struct {
	ExtraFile string
}

// CacheConfig enables result caching when TTL is positive.
type CacheConfig struct {
	TTL time.Duration
}

// Load resolves the configuration. dir is searched for threatd.yaml in
// addition to configs/ and the working directory; it may be empty.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("threatd")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("configs")
	v.AddConfigPath(".")
	v.SetEnvPrefix("THREATLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfgFile := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		cfgFile = v.ConfigFileUsed()
	}

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:     v.GetInt("server.http_port"),
			CORSOrigins:  splitList(v.GetStringSlice("server.cors_origins")),
			RateLimitRPS: v.GetInt("server.rate_limit_rps"),
		},
		GRPC: GRPCConfig{
			Port:        v.GetInt("grpc.port"),
			GatewayPort: v.GetInt("grpc.gateway_port"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Ledger:   LedgerConfig{Backend: v.GetString("ledger.backend")},
		Auth: AuthConfig{
			Secret:   v.GetString("auth.secret"),
			Issuer:   v.GetString("auth.issuer"),
			TokenTTL: v.GetDuration("auth.token_ttl"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Webhooks: WebhooksConfig{
			URLs:   splitList(v.GetStringSlice("webhooks.urls")),
			Secret: v.GetString("webhooks.secret"),
		},
		Patterns:   PatternsConfig{ExtraFile: v.GetString("patterns.extra_file")},
		Cache:      CacheConfig{TTL: v.GetDuration("cache.ttl")},
		ConfigFile: cfgFile,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("grpc.port", 9090)
	v.SetDefault("grpc.gateway_port", 8081)
	v.SetDefault("database.url", "")
	v.SetDefault("ledger.backend", "memory")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "threatlens")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "threatlens.analyses")
	v.SetDefault("webhooks.urls", []string{})
	v.SetDefault("webhooks.secret", "")
	v.SetDefault("patterns.extra_file", "")
	v.SetDefault("cache.ttl", "0s")
}

func (c *Config) validate() error {
	switch c.Ledger.Backend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("ledger.backend=postgres requires database.url")
		}
	default:
		return fmt.Errorf("unknown ledger.backend %q", c.Ledger.Backend)
	}
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return errors.New("auth.secret must be at least 32 characters")
	}
	return nil
}

// AuthEnabled reports whether bearer tokens are configured.
func (c *Config) AuthEnabled() bool { return c.Auth.Secret != "" }

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := []string{}
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
