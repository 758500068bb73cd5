package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	domainconfig "postservice/domain/config"
	"postservice/pkg/auth"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"serverAddress"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"logLevel"`

	// AWS configuration
	AWSRegion string `yaml:"awsRegion"`

	// Lambda configuration
	IsLambda           bool   `yaml:"isLambda"`
	LambdaFunctionName string `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Events    EventsConfig    `yaml:"events"`
	Auth      AuthConfig      `yaml:"auth"`

	// Feature flags
	EnableMetrics bool `yaml:"enableMetrics"`
	EnableTracing bool `yaml:"enableTracing"`
	EnableCORS    bool `yaml:"enableCors"`

	// ConfigFile is the YAML overlay this configuration was read from, if any
	ConfigFile string `yaml:"-"`
}

// DatabaseConfig locates the authoritative store
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// CacheConfig selects and tunes the key-value backend
type CacheConfig struct {
	Backend           string        `yaml:"backend"` // memory, redis or dynamodb
	RedisAddr         string        `yaml:"redisAddr"`
	RedisPassword     string        `yaml:"redisPassword"`
	RedisDB           int           `yaml:"redisDb"`
	DynamoDBTable     string        `yaml:"dynamodbTable"`
	TTL               time.Duration `yaml:"ttl"`
	LockLease         time.Duration `yaml:"lockLease"`
	LockRetryAttempts int           `yaml:"lockRetryAttempts"`
	LockRetryBackoff  time.Duration `yaml:"lockRetryBackoff"`
	StoreTimeout      time.Duration `yaml:"storeTimeout"`
}

// RateLimitConfig holds the per-class sliding window limits
type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled"`
	GetRequests        int  `yaml:"getRequests"`
	GetWindowSeconds   int  `yaml:"getWindowSeconds"`
	OtherRequests      int  `yaml:"otherRequests"`
	OtherWindowSeconds int  `yaml:"otherWindowSeconds"`
}

// EventsConfig selects the event transport
type EventsConfig struct {
	Transport      string        `yaml:"transport"` // local or eventbridge
	BusName        string        `yaml:"busName"`
	Workers        int           `yaml:"workers"`
	Outbox         bool          `yaml:"outbox"`
	OutboxInterval time.Duration `yaml:"outboxInterval"`
}

// AuthConfig configures token validation
type AuthConfig struct {
	JWTSecret   string `yaml:"jwtSecret"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
}

// LoadConfig loads configuration from environment variables, then applies the
// YAML file named by CONFIG_FILE on top
func LoadConfig() (*Config, error) {
	cfg := fromEnvironment()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// LoadFile rebuilds the configuration from the environment and the given overlay
func LoadFile(path string) (*Config, error) {
	cfg := fromEnvironment()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnvironment() *Config {
	return &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),

		IsLambda:           getEnvBool("IS_LAMBDA", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		Database: DatabaseConfig{
			DSN: getEnv("DATABASE_DSN", "data/posts.db"),
		},

		Cache: CacheConfig{
			Backend:           getEnv("CACHE_BACKEND", "memory"),
			RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:     getEnv("REDIS_PASSWORD", ""),
			RedisDB:           getEnvInt("REDIS_DB", 0),
			DynamoDBTable:     getEnv("DYNAMODB_TABLE", "postservice-cache"),
			TTL:               getEnvDuration("CACHE_TTL", time.Hour),
			LockLease:         getEnvDuration("LOCK_LEASE", 10*time.Second),
			LockRetryAttempts: getEnvInt("LOCK_RETRY_ATTEMPTS", 3),
			LockRetryBackoff:  getEnvDuration("LOCK_RETRY_BACKOFF", 50*time.Millisecond),
			StoreTimeout:      getEnvDuration("STORE_TIMEOUT", 500*time.Millisecond),
		},

		RateLimit: RateLimitConfig{
			Enabled:            getEnvBool("RATE_LIMIT_ENABLED", true),
			GetRequests:        getEnvInt("RATE_LIMIT_GET_REQUESTS", 100),
			GetWindowSeconds:   getEnvInt("RATE_LIMIT_GET_WINDOW_SECONDS", 60),
			OtherRequests:      getEnvInt("RATE_LIMIT_OTHER_REQUESTS", 30),
			OtherWindowSeconds: getEnvInt("RATE_LIMIT_OTHER_WINDOW_SECONDS", 60),
		},

		Events: EventsConfig{
			Transport:      getEnv("EVENT_TRANSPORT", "local"),
			BusName:        getEnv("EVENT_BUS_NAME", "postservice-events"),
			Workers:        getEnvInt("EVENT_WORKERS", 4),
			Outbox:         getEnvBool("EVENT_OUTBOX_ENABLED", false),
			OutboxInterval: getEnvDuration("EVENT_OUTBOX_INTERVAL", time.Second),
		},

		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			JWTIssuer:   getEnv("JWT_ISSUER", "postservice"),
			JWTAudience: getEnv("JWT_AUDIENCE", ""),
		},

		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}
}

// applyFile overlays the fields present in a YAML file
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis", "dynamodb":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	switch c.Events.Transport {
	case "local", "eventbridge":
	default:
		return fmt.Errorf("unknown event transport %q", c.Events.Transport)
	}

	if c.Cache.TTL <= 0 || c.Cache.LockLease <= 0 {
		return fmt.Errorf("cache ttl and lock lease must be positive")
	}
	if c.Cache.LockRetryAttempts < 1 {
		return fmt.Errorf("LOCK_RETRY_ATTEMPTS must be at least 1")
	}

	if c.RateLimit.GetRequests < 1 || c.RateLimit.OtherRequests < 1 ||
		c.RateLimit.GetWindowSeconds < 1 || c.RateLimit.OtherWindowSeconds < 1 {
		return fmt.Errorf("rate limits and windows must be positive")
	}

	if c.Environment == "production" {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.Events.Transport == "eventbridge" && c.Events.BusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// RateLimits converts the rate limit settings for the limiter
func (c *Config) RateLimits() auth.Limits {
	return auth.Limits{
		Enabled: c.RateLimit.Enabled,
		Get: auth.Limit{
			Requests: c.RateLimit.GetRequests,
			Window:   time.Duration(c.RateLimit.GetWindowSeconds) * time.Second,
		},
		Other: auth.Limit{
			Requests: c.RateLimit.OtherRequests,
			Window:   time.Duration(c.RateLimit.OtherWindowSeconds) * time.Second,
		},
	}
}

// Domain returns the domain configuration with the cache settings applied
func (c *Config) Domain() *domainconfig.DomainConfig {
	d := domainconfig.DefaultDomainConfig()
	d.CacheTTL = c.Cache.TTL
	d.LockLease = c.Cache.LockLease
	d.LockRetryAttempts = c.Cache.LockRetryAttempts
	d.LockRetryBackoff = c.Cache.LockRetryBackoff
	return d
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("500ms") or whole seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
