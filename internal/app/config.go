package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	Redis        RedisConfig
	Kafka        KafkaConfig
	Storage      StorageConfig
	Shipping     ShippingConfig
	Search       SearchConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig points at the cache, registration and rate limit store.
type RedisConfig struct {
	Addr     string        `default:"localhost:6379" usage:"Redis address"`
	Password string        `usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database number"`
	CartTTL  time.Duration `default:"10m" usage:"Cached cart lifetime" flag:"cart-ttl"`
}

// KafkaConfig controls notification publishing. Without brokers events are
// logged instead.
type KafkaConfig struct {
	Brokers     []string      `usage:"Kafka brokers"`
	Topic       string        `default:"storefront.notifications" usage:"Notification topic"`
	QueueSize   int           `default:"256" usage:"Notification buffer size" flag:"queue-size"`
	SendTimeout time.Duration `default:"5s" usage:"Per event publish timeout" flag:"send-timeout"`
}

// StorageConfig bounds every request's storage work.
type StorageConfig struct {
	OpTimeout time.Duration `default:"5s" usage:"Request deadline for storage operations" flag:"op-timeout"`
}

// ShippingConfig sets the flat shipping charge.
type ShippingConfig struct {
	FlatRate string `default:"50" usage:"Flat shipping charge per order" flag:"shipping-rate"`
}

// SearchConfig selects the product search strategy.
type SearchConfig struct {
	FullText bool `default:"true" usage:"Use PostgreSQL full-text search instead of ILIKE" flag:"full-text"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max     int           `default:"100" usage:"Max requests per window"`
	Window  time.Duration `default:"1m"  usage:"Rate limit window duration"`
	Backend string        `default:"memory" usage:"Limiter backend: memory or redis"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads the environment and the first config file found, applies
// platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the unprefixed variables set by hosting
// platforms (DATABASE_URL, PORT, REDIS_URL) onto the configuration.
func (c *Config) applyPlatformDefaults() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		opt, err := redis.ParseURL(v)
		if err != nil {
			return errors.Wrap(err, "parse REDIS_URL")
		}
		c.Redis.Addr = opt.Addr
		c.Redis.Password = opt.Password
		c.Redis.DB = opt.DB
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set SHOP_API_KEY_PEPPER")
	}
	if _, err := c.ShippingRate(); err != nil {
		return err
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return errors.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// ShippingRate parses Shipping.FlatRate.
func (c *Config) ShippingRate() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Shipping.FlatRate))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse shipping rate %q", c.Shipping.FlatRate)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("shipping rate %s is negative", d)
	}
	return d, nil
}

// RedisOptions returns client options for the configured Redis.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}
