package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backend names accepted by PROFILE_STORE and AUDIT_STORE
const (
	BackendPostgres      = "postgres"
	BackendRedis         = "redis"
	BackendElasticsearch = "elasticsearch"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for audit logs. When nil, audit uses main DB.
	Redis         RedisConfig
	Elasticsearch ElasticsearchConfig
	Store         StoreConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
	PolicyFile    string // Optional YAML file replacing the built-in policy for Environment
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	KeyPrefix    string
}

// ElasticsearchConfig holds the audit index settings
type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// StoreConfig selects the backing stores
type StoreConfig struct {
	ProfileBackend string
	AuditBackend   string
}

// CacheConfig holds permission profile cache settings
type CacheConfig struct {
	TTL             time.Duration
	MaxEntries      int
	StoreTimeout    time.Duration // Bound on a single profile store round trip
	CleanupInterval time.Duration
}

// AuditConfig holds audit dispatcher settings
type AuditConfig struct {
	BufferSize      int
	WorkerCount     int
	WriteTimeout    time.Duration
	RetryDelay      time.Duration
	ShutdownTimeout time.Duration
	PurgeInterval   time.Duration // PostgreSQL only; other stores expire entries themselves
}

// AuthConfig holds service-to-service authentication settings
type AuthConfig struct {
	ServiceSecret     string // HS256 secret shared with the upstream gateway; empty disables auth
	ServiceIssuer     string
	TrustProxyHeaders bool
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		PolicyFile:  getEnv("POLICY_FILE", ""),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "permission"),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: getEnvAsList("ELASTICSEARCH_ADDRESSES", []string{"http://localhost:9200"}),
			Username:  getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:  getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:     getEnv("ELASTICSEARCH_AUDIT_INDEX", "permission-audit-logs"),
		},
		Store: StoreConfig{
			ProfileBackend: strings.ToLower(getEnv("PROFILE_STORE", BackendPostgres)),
			AuditBackend:   strings.ToLower(getEnv("AUDIT_STORE", BackendPostgres)),
		},
		Cache: CacheConfig{
			TTL:             getEnvAsDuration("PROFILE_CACHE_TTL", 5*time.Minute),
			MaxEntries:      getEnvAsInt("PROFILE_CACHE_MAX_ENTRIES", 1000),
			StoreTimeout:    getEnvAsDuration("PROFILE_STORE_TIMEOUT", 2*time.Second),
			CleanupInterval: getEnvAsDuration("PROFILE_CACHE_CLEANUP_INTERVAL", time.Minute),
		},
		Audit: AuditConfig{
			BufferSize:      getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount:     getEnvAsInt("AUDIT_WORKER_COUNT", 4),
			WriteTimeout:    getEnvAsDuration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
			RetryDelay:      getEnvAsDuration("AUDIT_RETRY_DELAY", 100*time.Millisecond),
			ShutdownTimeout: getEnvAsDuration("AUDIT_SHUTDOWN_TIMEOUT", 10*time.Second),
			PurgeInterval:   getEnvAsDuration("AUDIT_PURGE_INTERVAL", time.Hour),
		},
		Auth: AuthConfig{
			ServiceSecret:     getEnv("SERVICE_AUTH_SECRET", ""),
			ServiceIssuer:     getEnv("SERVICE_AUTH_ISSUER", ""),
			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if _, err := ParseEnvironment(c.Environment); err != nil {
		return err
	}

	switch c.Store.ProfileBackend {
	case BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unsupported profile store %q: use postgres or redis", c.Store.ProfileBackend)
	}
	switch c.Store.AuditBackend {
	case BackendPostgres, BackendRedis, BackendElasticsearch:
	default:
		return fmt.Errorf("unsupported audit store %q: use postgres, redis or elasticsearch", c.Store.AuditBackend)
	}

	if c.UsesBackend(BackendPostgres) {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	}
	if c.UsesBackend(BackendRedis) && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.UsesBackend(BackendElasticsearch) {
		if len(c.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("elasticsearch addresses are required")
		}
		if c.Elasticsearch.Index == "" {
			return fmt.Errorf("elasticsearch audit index is required")
		}
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("profile cache TTL must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("profile cache max entries must be positive")
	}
	if c.Cache.StoreTimeout <= 0 {
		return fmt.Errorf("profile store timeout must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("profile cache cleanup interval must be positive")
	}
	if c.Audit.WorkerCount <= 0 || c.Audit.BufferSize < 0 {
		return fmt.Errorf("audit worker count must be positive and buffer size non-negative")
	}

	// Service auth is mandatory in production
	if c.IsProduction() && c.Auth.ServiceSecret == "" {
		return fmt.Errorf("SERVICE_AUTH_SECRET is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// UsesBackend reports whether either store is configured with backend
func (c *Config) UsesBackend(backend string) bool {
	return c.Store.ProfileBackend == backend || c.Store.AuditBackend == backend
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env, err := ParseEnvironment(c.Environment)
	return err == nil && env == EnvProduction
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	env, err := ParseEnvironment(c.Environment)
	return err == nil && env == EnvDevelopment
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "permissions"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "permissions"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL_AUDIT.
// Returns nil when not set (audit uses main DB).
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
