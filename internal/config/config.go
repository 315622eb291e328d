package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	NATS       NATSConfig       `yaml:"nats"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Admin      AdminConfig      `yaml:"admin"`
	Payout     PayoutConfig     `yaml:"payout"`
	CORS       CORSConfig       `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// LedgerConfig ledger RPC configuration
type LedgerConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

// NATSConfig message server configuration; empty URL disables events
type NATSConfig struct {
	URL string `yaml:"url"`
}

// EncryptionConfig server-held symmetric secret. Used uniformly by the
// commitment codec and the escrow custodian (via derived subkeys).
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// AdminConfig operator API access control
type AdminConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// PayoutConfig disbursement retry and confirmation tuning
type PayoutConfig struct {
	MaxAttempts            int `yaml:"max_attempts"`
	RetryDelaySeconds      int `yaml:"retry_delay_seconds"`
	ConfirmIntervalSeconds int `yaml:"confirm_interval_seconds"`
	ConfirmTimeoutSeconds  int `yaml:"confirm_timeout_seconds"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AppConfig global configuration instance
var AppConfig *Config

// LoadConfig loads configuration from a YAML file with environment
// variable overrides. Call Validate before using the result.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Printf("✅ Loading configuration from %s", configPath)
	} else {
		// A missing file is fine as long as env vars fill the gaps.
		log.Printf("⚠️ Config file %s not readable (%v), relying on environment variables", configPath, err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if rpc := os.Getenv("LEDGER_RPC_URL"); rpc != "" {
		config.Ledger.RPCURL = rpc
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if key := os.Getenv("ENCRYPTION_KEY"); key != "" {
		config.Encryption.Key = key
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Payout.MaxAttempts == 0 {
		config.Payout.MaxAttempts = 3
	}
	if config.Payout.RetryDelaySeconds == 0 {
		config.Payout.RetryDelaySeconds = 5
	}
	if config.Payout.ConfirmIntervalSeconds == 0 {
		config.Payout.ConfirmIntervalSeconds = 5
	}
	if config.Payout.ConfirmTimeoutSeconds == 0 {
		config.Payout.ConfirmTimeoutSeconds = 120
	}
}

// Validate fails fast on configuration the process cannot run without.
// A missing encryption key is a fatal startup error, never a
// per-request one.
func (c *Config) Validate() error {
	if c.Encryption.Key == "" {
		return fmt.Errorf("encryption key is required (set encryption.key or ENCRYPTION_KEY)")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (set database.dsn or DATABASE_DSN)")
	}
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger RPC URL is required (set ledger.rpc_url or LEDGER_RPC_URL)")
	}
	return nil
}

// RetryDelay returns the payout retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Payout.RetryDelaySeconds) * time.Second
}

// ConfirmInterval returns the confirmation poll interval.
func (c *Config) ConfirmInterval() time.Duration {
	return time.Duration(c.Payout.ConfirmIntervalSeconds) * time.Second
}

// ConfirmTimeout returns the confirmation timeout.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Payout.ConfirmTimeoutSeconds) * time.Second
}
