// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage settings
	StoreDriver       string
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool
	SQLitePath        string

	// Accounts settings. AccountsFile seeds the in-memory directory when
	// accounts are not read from MongoDB.
	AccountsDriver string
	AccountsFile   string

	// NATS settings. An empty URL disables event publishing.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	NATSReconnectWait time.Duration
	NATSMaxReconnects int

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool

	// Messaging
	SupportFallbackEmail string
	InboxOverfetchFactor int
	DefaultPageSize      int
	MaxPageSize          int
	SnippetLength        int
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

		// Storage
		StoreDriver:       getEnv("STORE_DRIVER", DriverMemory),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGO_DATABASE", "storefront"),
		MongoTransactions: getBoolEnv("MONGO_TRANSACTIONS", true),
		SQLitePath:        getEnv("SQLITE_PATH", "messages.db"),

		// Accounts
		AccountsDriver: getEnv("ACCOUNTS_DRIVER", DriverMemory),
		AccountsFile:   getEnv("ACCOUNTS_FILE", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		NATSReconnectWait: getDurationEnv("NATS_RECONNECT_WAIT", 2*time.Second),
		NATSMaxReconnects: getIntEnv("NATS_MAX_RECONNECTS", -1),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),

		// Messaging
		SupportFallbackEmail: getEnv("SUPPORT_FALLBACK_EMAIL", ""),
		InboxOverfetchFactor: getIntEnv("INBOX_OVERFETCH_FACTOR", 5),
		DefaultPageSize:      getIntEnv("DEFAULT_PAGE_SIZE", 20),
		MaxPageSize:          getIntEnv("MAX_PAGE_SIZE", 100),
		SnippetLength:        getIntEnv("SNIPPET_LENGTH", 80),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AccountsDriver {
	case DriverMemory, DriverMongo:
	default:
		return fmt.Errorf("unknown ACCOUNTS_DRIVER %q", c.AccountsDriver)
	}
	if c.InboxOverfetchFactor < 1 {
		return fmt.Errorf("INBOX_OVERFETCH_FACTOR must be positive, got %d", c.InboxOverfetchFactor)
	}
	if c.DefaultPageSize < 1 || c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("page sizes out of range: default %d, max %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.SnippetLength < 1 {
		return fmt.Errorf("SNIPPET_LENGTH must be positive, got %d", c.SnippetLength)
	}
	return nil
}

// UsesMongo reports whether any component reads or writes MongoDB.
func (c *Config) UsesMongo() bool {
	return c.StoreDriver == DriverMongo || c.AccountsDriver == DriverMongo
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
