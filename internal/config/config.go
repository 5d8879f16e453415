// Package config provides configuration management for the certificate
// manager. It handles loading configuration from YAML files, applying
// environment variable overrides and command line flags, and validating
// configuration values for server, database, JWT, OTP, SMS, crypto, logging,
// and security settings.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	OTP      OTPConfig      `yaml:"otp"`
	SMS      SMSConfig      `yaml:"sms"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
	TLSCert      string        `yaml:"tls_cert"`
	TLSKey       string        `yaml:"tls_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// JWTConfig holds JWT authentication configuration
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Expiration time.Duration `yaml:"expiration"`
	Issuer     string        `yaml:"issuer"`
}

// OTPConfig holds one-time code configuration
type OTPConfig struct {
	ValidityWindow time.Duration `yaml:"validity_window"`
	Store          string        `yaml:"store"` // "memory" or "redis"
	Redis          RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection configuration for the OTP store
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SMSConfig holds outbound SMS delivery configuration
type SMSConfig struct {
	AccountSID  string        `yaml:"account_sid"`
	AuthToken   string        `yaml:"auth_token"`
	FromNumber  string        `yaml:"from_number"`
	APIBaseURL  string        `yaml:"api_base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// CryptoConfig holds cryptographic settings for certificate issuance
type CryptoConfig struct {
	MasterKey           string `yaml:"master_key"` // hex-encoded 32 bytes
	DefaultValidityDays int    `yaml:"default_validity_days"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	PasswordHistoryLimit int      `yaml:"password_history_limit"`
	CORSEnabled          bool     `yaml:"cors_enabled"`
	CORSOrigins          []string `yaml:"cors_origins"`
	RateLimitEnabled     bool     `yaml:"rate_limit_enabled"`
	RateLimitRequests    int      `yaml:"rate_limit_requests"`
	RateLimitWindow      string   `yaml:"rate_limit_window"`
}

// Load reads the configuration file, then applies environment variable
// overrides and command line flag overrides in that order.
func Load(path string, flags *Flags) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if flags != nil {
		flags.Apply(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in values the file may omit
func (c *Config) applyDefaults() {
	if c.OTP.ValidityWindow == 0 {
		c.OTP.ValidityWindow = 2 * time.Minute
	}
	if c.OTP.Store == "" {
		c.OTP.Store = "memory"
	}
	if c.SMS.APIBaseURL == "" {
		c.SMS.APIBaseURL = "https://api.twilio.com"
	}
	if c.SMS.HTTPTimeout == 0 {
		c.SMS.HTTPTimeout = 10 * time.Second
	}
	if c.Security.PasswordHistoryLimit == 0 {
		c.Security.PasswordHistoryLimit = 3
	}
	if c.Crypto.DefaultValidityDays == 0 {
		c.Crypto.DefaultValidityDays = 365
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	// Server overrides
	if port := os.Getenv("CERTIVUS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("CERTIVUS_SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	// Database overrides
	if dbType := os.Getenv("CERTIVUS_DB_TYPE"); dbType != "" {
		c.Database.Type = dbType
	}
	if dbPath := os.Getenv("CERTIVUS_DB_SQLITE_PATH"); dbPath != "" {
		c.Database.SQLite.Path = dbPath
	}
	if pgHost := os.Getenv("CERTIVUS_DB_POSTGRES_HOST"); pgHost != "" {
		c.Database.Postgres.Host = pgHost
	}
	if pgPort := os.Getenv("CERTIVUS_DB_POSTGRES_PORT"); pgPort != "" {
		if p, err := strconv.Atoi(pgPort); err == nil {
			c.Database.Postgres.Port = p
		}
	}
	if pgDB := os.Getenv("CERTIVUS_DB_POSTGRES_DATABASE"); pgDB != "" {
		c.Database.Postgres.Database = pgDB
	}
	if pgUser := os.Getenv("CERTIVUS_DB_POSTGRES_USER"); pgUser != "" {
		c.Database.Postgres.User = pgUser
	}
	if pgPass := os.Getenv("CERTIVUS_DB_POSTGRES_PASSWORD"); pgPass != "" {
		c.Database.Postgres.Password = pgPass
	}

	// JWT overrides
	if jwtSecret := os.Getenv("CERTIVUS_JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	// OTP overrides
	if store := os.Getenv("CERTIVUS_OTP_STORE"); store != "" {
		c.OTP.Store = store
	}
	if addr := os.Getenv("CERTIVUS_OTP_REDIS_ADDR"); addr != "" {
		c.OTP.Redis.Addr = addr
	}

	// SMS overrides; credentials normally arrive through the environment
	if sid := os.Getenv("CERTIVUS_SMS_ACCOUNT_SID"); sid != "" {
		c.SMS.AccountSID = sid
	}
	if token := os.Getenv("CERTIVUS_SMS_AUTH_TOKEN"); token != "" {
		c.SMS.AuthToken = token
	}
	if from := os.Getenv("CERTIVUS_SMS_FROM_NUMBER"); from != "" {
		c.SMS.FromNumber = from
	}

	// Crypto overrides
	if key := os.Getenv("CERTIVUS_CRYPTO_MASTER_KEY"); key != "" {
		c.Crypto.MasterKey = key
	}

	// Logging overrides
	if logLevel := os.Getenv("CERTIVUS_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCert == "" || c.Server.TLSKey == "" {
			return fmt.Errorf("TLS enabled but cert or key not specified")
		}
	}

	// Validate database config
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("invalid database type: %s (must be 'sqlite' or 'postgres')", c.Database.Type)
	}
	if c.Database.Type == "sqlite" && c.Database.SQLite.Path == "" {
		return fmt.Errorf("SQLite path not specified")
	}
	if c.Database.Type == "postgres" {
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return fmt.Errorf("PostgreSQL host and database must be specified")
		}
	}

	// Validate OTP config
	if c.OTP.Store != "memory" && c.OTP.Store != "redis" {
		return fmt.Errorf("invalid OTP store: %s (must be 'memory' or 'redis')", c.OTP.Store)
	}
	if c.OTP.Store == "redis" && c.OTP.Redis.Addr == "" {
		return fmt.Errorf("redis OTP store selected but no address specified")
	}
	if c.OTP.ValidityWindow <= 0 {
		return fmt.Errorf("OTP validity window must be positive")
	}

	// Validate crypto config
	if c.Crypto.MasterKey != "" {
		key, err := hex.DecodeString(c.Crypto.MasterKey)
		if err != nil {
			return fmt.Errorf("master key is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("master key must be 32 bytes, got %d", len(key))
		}
	}
	if c.Crypto.DefaultValidityDays < 1 {
		return fmt.Errorf("certificate validity must be at least one day")
	}

	// Validate security config
	if c.Security.PasswordHistoryLimit < 1 {
		return fmt.Errorf("password history limit must be at least 1")
	}

	// Validate logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// MasterKeyBytes decodes the configured master key
func (c *Config) MasterKeyBytes() ([]byte, error) {
	if c.Crypto.MasterKey == "" {
		return nil, fmt.Errorf("master key not configured")
	}
	return hex.DecodeString(c.Crypto.MasterKey)
}

// GetDSN returns the database connection string based on the configured type
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}
