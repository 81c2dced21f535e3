package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Cache       CacheConfig
	Search      SearchConfig
	S3          S3Config
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CacheConfig controls the in-process product cache.
type CacheConfig struct {
	Size int           `default:"1024" usage:"Max cached product entries"`
	TTL  time.Duration `default:"5m"   usage:"Cache entry time to live"`
}

// SearchConfig controls the optional Elasticsearch product index. When
// disabled, product search falls back to SQL pattern matching.
type SearchConfig struct {
	Enabled   bool     `default:"false" usage:"Enable Elasticsearch product search"`
	Addresses []string `default:"http://localhost:9200" usage:"Elasticsearch node addresses"`
	Username  string   `usage:"Elasticsearch username"`
	Password  string   `usage:"Elasticsearch password"`
	Index     string   `default:"products" usage:"Elasticsearch index name"`
}

// S3Config controls the optional S3 image store. When disabled, upload
// endpoints report storage unavailable.
type S3Config struct {
	Enabled       bool   `default:"false" usage:"Enable S3 image storage"`
	Bucket        string `usage:"S3 bucket name"`
	Region        string `default:"us-east-1" usage:"S3 region"`
	Endpoint      string `usage:"Custom S3 endpoint (MinIO, localstack)"`
	AccessKey     string `usage:"S3 access key (falls back to ambient AWS credentials)" flag:"s3-access-key"`
	SecretKey     string `usage:"S3 secret key" flag:"s3-secret-key"`
	PublicBaseURL string `usage:"Public base URL for stored objects" flag:"s3-public-base-url"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	RPS   float64 `default:"50" usage:"Sustained requests per second per client"`
	Burst int     `default:"100" usage:"Burst allowance per client"`
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

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		return nil, errors.New("S3 is enabled but SHOP_S3_BUCKET is empty")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
