package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (EVENTPASS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (EVENTPASS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Database     DatabaseConfig
	Promo        PromoConfig
	Checkout     CheckoutConfig
	Webpay       WebpayConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// DatabaseConfig controls the PostgreSQL pool and row lock waits.
type DatabaseConfig struct {
	URL             string        `usage:"PostgreSQL connection URL (EVENTPASS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxConns        int32         `default:"25" usage:"Maximum pool connections"`
	MinConns        int32         `default:"2" usage:"Minimum idle pool connections"`
	MaxConnIdleTime time.Duration `default:"5m" usage:"Close idle connections after this long"`
	LockTimeout     time.Duration `default:"3s" usage:"Maximum wait for a promotion or ticket row lock" flag:"lock-timeout"`
}

// PromoConfig controls promotion code evaluation.
type PromoConfig struct {
	SharedCodeTTL time.Duration `default:"720h" usage:"Lifetime of minted shared codes; 0 disables expiry" flag:"shared-code-ttl"`
	Location      string        `default:"America/Santiago" usage:"Time zone for date-only validity windows"`
}

// CheckoutConfig controls order limits and the buyer return URL.
type CheckoutConfig struct {
	MaxQuantity       int    `default:"10" usage:"Maximum units per ticket type in one order"`
	MaxExemptQuantity int    `default:"1" usage:"Maximum exempt (parking) units per order"`
	PublicBaseURL     string `default:"http://localhost:8080" usage:"Public base URL the gateway returns buyers to" flag:"public-base-url"`
}

// WebpayConfig configures the payment gateway client.
type WebpayConfig struct {
	BaseURL           string        `default:"https://webpay3gint.transbank.cl" usage:"Webpay REST base URL"`
	CommerceCode      string        `default:"597055555532" usage:"Transbank commerce code" flag:"webpay-commerce-code"`
	APIKey            string        `usage:"Transbank API key secret (EVENTPASS_WEBPAY_API_KEY)" flag:"webpay-api-key"`
	Timeout           time.Duration `default:"15s" usage:"Per-request timeout"`
	RequestsPerSecond float64       `default:"20" usage:"Outbound request rate; 0 disables throttling"`
	Burst             int           `default:"5" usage:"Outbound request burst"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "EVENTPASS",
		Files:     []string{"config.yaml", "/etc/eventpass/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's EVENTPASS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Database.URL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Database.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database URL is required: set EVENTPASS_DATABASE_URL or DATABASE_URL")
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set EVENTPASS_API_KEY_PEPPER")
	}
	if _, err := time.LoadLocation(c.Promo.Location); err != nil {
		return errors.Wrapf(err, "promo location %q", c.Promo.Location)
	}
	if c.Database.LockTimeout <= 0 {
		return errors.New("database lock timeout must be positive")
	}
	return nil
}
