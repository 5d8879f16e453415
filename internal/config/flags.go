package config

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

// Flags holds all command line flag values
type Flags struct {
	// General
	configFile *string
	version    *bool

	// Server
	serverPort *int
	serverHost *string

	// Database
	dbType             *string
	dbSQLitePath       *string
	dbPostgresHost     *string
	dbPostgresPort     *int
	dbPostgresDatabase *string
	dbPostgresUser     *string
	dbPostgresPassword *string

	// JWT
	jwtSecret     *string
	jwtExpiration *string
	jwtIssuer     *string

	// OTP
	otpStore          *string
	otpValidityWindow *string
	otpRedisAddr      *string

	// SMS
	smsAccountSID *string
	smsAuthToken  *string
	smsFromNumber *string
	smsAPIBaseURL *string

	// Crypto
	cryptoMasterKey    *string
	cryptoValidityDays *int

	// Logging
	logLevel  *string
	logFormat *string

	// Security
	securityPasswordHistoryLimit *int
	securityCORSEnabled          *bool
	securityCORSOrigins          *[]string
}

// ParseFlags defines and parses all command line flags
func ParseFlags() (*Flags, string, bool) {
	f := &Flags{}

	// General flags
	f.configFile = flag.StringP("config", "c", "config.yaml", "Path to configuration file")
	f.version = flag.BoolP("version", "v", false, "Print version and exit")

	// Server flags
	f.serverPort = flag.Int("server.port", 0, "HTTP server port")
	f.serverHost = flag.String("server.host", "", "HTTP server bind address")

	// Database flags
	f.dbType = flag.String("db.type", "", "Database type (sqlite or postgres)")
	f.dbSQLitePath = flag.String("db.sqlite.path", "", "SQLite database file path")
	f.dbPostgresHost = flag.String("db.postgres.host", "", "PostgreSQL host")
	f.dbPostgresPort = flag.Int("db.postgres.port", 0, "PostgreSQL port")
	f.dbPostgresDatabase = flag.String("db.postgres.database", "", "PostgreSQL database name")
	f.dbPostgresUser = flag.String("db.postgres.user", "", "PostgreSQL user")
	f.dbPostgresPassword = flag.String("db.postgres.password", "", "PostgreSQL password")

	// JWT flags
	f.jwtSecret = flag.String("jwt.secret", "", "JWT secret key")
	f.jwtExpiration = flag.String("jwt.expiration", "", "JWT expiration duration (e.g., 24h)")
	f.jwtIssuer = flag.String("jwt.issuer", "", "JWT issuer")

	// OTP flags
	f.otpStore = flag.String("otp.store", "", "One-time code store backend (memory or redis)")
	f.otpValidityWindow = flag.String("otp.validity-window", "", "One-time code validity window (e.g., 2m)")
	f.otpRedisAddr = flag.String("otp.redis.addr", "", "Redis address for the OTP store")

	// SMS flags
	f.smsAccountSID = flag.String("sms.account-sid", "", "Twilio account SID")
	f.smsAuthToken = flag.String("sms.auth-token", "", "Twilio auth token")
	f.smsFromNumber = flag.String("sms.from-number", "", "Sender phone number")
	f.smsAPIBaseURL = flag.String("sms.api-base-url", "", "SMS API base URL")

	// Crypto flags
	f.cryptoMasterKey = flag.String("crypto.master-key", "", "Hex-encoded 32-byte key for private key encryption")
	f.cryptoValidityDays = flag.Int("crypto.validity-days", 0, "Default certificate validity in days")

	// Logging flags
	f.logLevel = flag.StringP("log.level", "l", "", "Log level (debug, info, warn, error)")
	f.logFormat = flag.String("log.format", "", "Log format (json or console)")

	// Security flags
	f.securityPasswordHistoryLimit = flag.Int("security.password-history-limit", 0, "Number of past passwords retained per user")
	f.securityCORSEnabled = flag.Bool("security.cors-enabled", false, "Enable CORS")
	f.securityCORSOrigins = flag.StringSlice("security.cors-origins", nil, "CORS allowed origins (can be specified multiple times)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Certivus - certificate issuance and account verification service\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfiguration priority (highest to lowest):\n")
		fmt.Fprintf(os.Stderr, "  1. Command line flags\n")
		fmt.Fprintf(os.Stderr, "  2. Environment variables (CERTIVUS_*)\n")
		fmt.Fprintf(os.Stderr, "  3. Configuration file (default: config.yaml)\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with custom config file\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/certivus/config.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Override port and database type\n")
		fmt.Fprintf(os.Stderr, "  %s --server.port 9000 --db.type postgres\n\n", os.Args[0])
	}

	flag.Parse()

	return f, *f.configFile, *f.version
}

func changed(name string) bool {
	fl := flag.Lookup(name)
	return fl != nil && fl.Changed
}

// Apply overlays flag values onto the configuration. Only flags the user
// actually set on the command line take effect.
func (f *Flags) Apply(c *Config) {
	if changed("server.port") {
		c.Server.Port = *f.serverPort
	}
	if changed("server.host") {
		c.Server.Host = *f.serverHost
	}

	if changed("db.type") {
		c.Database.Type = *f.dbType
	}
	if changed("db.sqlite.path") {
		c.Database.SQLite.Path = *f.dbSQLitePath
	}
	if changed("db.postgres.host") {
		c.Database.Postgres.Host = *f.dbPostgresHost
	}
	if changed("db.postgres.port") {
		c.Database.Postgres.Port = *f.dbPostgresPort
	}
	if changed("db.postgres.database") {
		c.Database.Postgres.Database = *f.dbPostgresDatabase
	}
	if changed("db.postgres.user") {
		c.Database.Postgres.User = *f.dbPostgresUser
	}
	if changed("db.postgres.password") {
		c.Database.Postgres.Password = *f.dbPostgresPassword
	}

	if changed("jwt.secret") {
		c.JWT.Secret = *f.jwtSecret
	}
	if changed("jwt.expiration") {
		if d, err := time.ParseDuration(*f.jwtExpiration); err == nil {
			c.JWT.Expiration = d
		}
	}
	if changed("jwt.issuer") {
		c.JWT.Issuer = *f.jwtIssuer
	}

	if changed("otp.store") {
		c.OTP.Store = *f.otpStore
	}
	if changed("otp.validity-window") {
		if d, err := time.ParseDuration(*f.otpValidityWindow); err == nil {
			c.OTP.ValidityWindow = d
		}
	}
	if changed("otp.redis.addr") {
		c.OTP.Redis.Addr = *f.otpRedisAddr
	}

	if changed("sms.account-sid") {
		c.SMS.AccountSID = *f.smsAccountSID
	}
	if changed("sms.auth-token") {
		c.SMS.AuthToken = *f.smsAuthToken
	}
	if changed("sms.from-number") {
		c.SMS.FromNumber = *f.smsFromNumber
	}
	if changed("sms.api-base-url") {
		c.SMS.APIBaseURL = *f.smsAPIBaseURL
	}

	if changed("crypto.master-key") {
		c.Crypto.MasterKey = *f.cryptoMasterKey
	}
	if changed("crypto.validity-days") {
		c.Crypto.DefaultValidityDays = *f.cryptoValidityDays
	}

	if changed("log.level") {
		c.Logging.Level = *f.logLevel
	}
	if changed("log.format") {
		c.Logging.Format = *f.logFormat
	}

	if changed("security.password-history-limit") {
		c.Security.PasswordHistoryLimit = *f.securityPasswordHistoryLimit
	}
	if changed("security.cors-enabled") {
		c.Security.CORSEnabled = *f.securityCORSEnabled
	}
	if changed("security.cors-origins") {
		c.Security.CORSOrigins = *f.securityCORSOrigins
	}
}
