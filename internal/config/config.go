package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zfogg/listingboard/internal/util"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Broker backends
const (
	BrokerLocal    = "local"
	BrokerRedis    = "redis"
	BrokerPostgres = "postgres"
)

// Config holds everything the server reads from the environment
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFile     string

	DatabaseURL string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	// LedgerStore selects where statistics live: memory, postgres or redis
	LedgerStore string
	// LedgerBroker selects how changes reach watchers: local, redis or postgres
	LedgerBroker string
	// LedgerMaxRetries bounds optimistic concurrency retries in the redis store
	LedgerMaxRetries int
	// LedgerTimeout bounds a single ledger call issued by a request
	LedgerTimeout time.Duration

	JWTSecret string
	JWTIssuer string

	CORSOrigins        []string
	RateLimitPerMinute int

	OTelEnabled      bool
	OTelEndpoint     string
	OTelSamplingRate float64
	ServiceName      string
}

// Load reads .env (when present) and the environment, applies defaults and validates the result
func Load() (*Config, error) {
	return load(true)
}

// LoadForTool is Load for offline tools (migrate, seed) that issue no tokens
// and so do not need JWT_SECRET.
func LoadForTool() (*Config, error) {
	return load(false)
}

func load(withAuth bool) (*Config, error) {
	// .env is optional; real deployments set variables directly
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8787"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:     getEnvOrDefault("LOG_FILE", "ledger.log"),

		DatabaseURL: databaseURL(),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		LedgerStore:      strings.ToLower(getEnvOrDefault("LEDGER_STORE", StorePostgres)),
		LedgerBroker:     strings.ToLower(getEnvOrDefault("LEDGER_BROKER", BrokerLocal)),
		LedgerMaxRetries: util.ParseInt(os.Getenv("LEDGER_MAX_RETRIES"), 10),
		LedgerTimeout:    util.ParseDuration(os.Getenv("LEDGER_TIMEOUT"), 5*time.Second),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTIssuer: getEnvOrDefault("JWT_ISSUER", "listingboard"),

		CORSOrigins:        util.SplitCSV(getEnvOrDefault("CORS_ORIGINS", "http://localhost:3000")),
		RateLimitPerMinute: util.ParseInt(os.Getenv("RATE_LIMIT_PER_MINUTE"), 60),

		OTelEnabled:      util.ParseBool(os.Getenv("OTEL_ENABLED"), false),
		OTelEndpoint:     getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTelSamplingRate: util.ParseFloat(os.Getenv("OTEL_SAMPLING_RATE"), 1.0),
		ServiceName:      getEnvOrDefault("OTEL_SERVICE_NAME", "listingboard-ledger"),
	}

	if err := cfg.validateLedger(); err != nil {
		return nil, err
	}
	if withAuth {
		if err := cfg.validateAuth(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate rejects missing secrets and backend combinations that cannot work
func (c *Config) Validate() error {
	if err := c.validateAuth(); err != nil {
		return err
	}
	return c.validateLedger()
}

func (c *Config) validateAuth() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if len(c.JWTSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.LedgerStore {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("LEDGER_STORE %q is not one of memory, postgres, redis", c.LedgerStore)
	}
	switch c.LedgerBroker {
	case BrokerLocal, BrokerRedis, BrokerPostgres:
	default:
		return fmt.Errorf("LEDGER_BROKER %q is not one of local, redis, postgres", c.LedgerBroker)
	}

	if (c.LedgerStore == StoreRedis || c.LedgerBroker == BrokerRedis) && c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required when LEDGER_STORE or LEDGER_BROKER is redis")
	}
	if c.LedgerBroker == BrokerPostgres && c.LedgerStore != StorePostgres {
		return fmt.Errorf("LEDGER_BROKER=postgres requires LEDGER_STORE=postgres")
	}
	if c.LedgerStore == StoreMemory && c.LedgerBroker != BrokerLocal {
		return fmt.Errorf("LEDGER_STORE=memory only supports LEDGER_BROKER=local")
	}
	if c.LedgerMaxRetries < 1 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must be at least 1")
	}
	if c.OTelSamplingRate < 0 || c.OTelSamplingRate > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be between 0 and 1")
	}
	return nil
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NeedsDatabase reports whether a postgres connection must be opened
func (c *Config) NeedsDatabase() bool {
	return c.LedgerStore == StorePostgres
}

// NeedsRedis reports whether a redis connection must be opened
func (c *Config) NeedsRedis() bool {
	return c.LedgerStore == StoreRedis || c.LedgerBroker == BrokerRedis
}

// databaseURL builds the DSN from DATABASE_URL or the DB_* parts
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnvOrDefault("DB_HOST", "localhost"),
		getEnvOrDefault("DB_PORT", "5432"),
		getEnvOrDefault("DB_USER", "postgres"),
		getEnvOrDefault("DB_PASSWORD", ""),
		getEnvOrDefault("DB_NAME", "listingboard"),
		getEnvOrDefault("DB_SSLMODE", "disable"),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
