package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Google    GoogleConfig
	MagicLink MagicLinkConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AllowedOrigins is the CORS allow-list; "*" admits any origin. It
	// defaults to the console's own origin.
	AllowedOrigins []string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

// AuthConfig drives the session bootstrap and password sign-in.
type AuthConfig struct {
	// BootstrapAdminEmail is auto-approved and promoted on first sign-in and
	// is exempt from demotion/revocation through the admin API.
	BootstrapAdminEmail string
	SessionTTL          time.Duration
	LocalScope          string
	MinPasswordLength   int
	SignInRPS           float64
	SignInBurst         int
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Issuer       string
}

// Enabled reports whether Google sign-in can be offered.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type MagicLinkConfig struct {
	Secret  string
	TTL     time.Duration
	BaseURL string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5173")
	v.SetDefault("SERVER_HOST", "127.0.0.1")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "webaffe")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("SESSION_TTL_HOURS", 24*14)
	v.SetDefault("LOCAL_SCOPE", "webaffe")
	v.SetDefault("MIN_PASSWORD_LENGTH", 6)
	v.SetDefault("SIGNIN_RPS", 0.2)
	v.SetDefault("SIGNIN_BURST", 5)
	v.SetDefault("GOOGLE_ISSUER", "https://accounts.google.com")
	v.SetDefault("MAGIC_LINK_TTL_MINUTES", 60)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	host := v.GetString("SERVER_HOST")
	port := v.GetString("SERVER_PORT")
	baseURL := v.GetString("MAGIC_LINK_BASE_URL")
	if baseURL == "" {
		baseURL = "http://" + host + ":" + port
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           port,
			Host:           host,
			Environment:    v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Auth: AuthConfig{
			BootstrapAdminEmail: strings.TrimSpace(v.GetString("BOOTSTRAP_ADMIN_EMAIL")),
			SessionTTL:          time.Duration(v.GetInt("SESSION_TTL_HOURS")) * time.Hour,
			LocalScope:          v.GetString("LOCAL_SCOPE"),
			MinPasswordLength:   v.GetInt("MIN_PASSWORD_LENGTH"),
			SignInRPS:           v.GetFloat64("SIGNIN_RPS"),
			SignInBurst:         v.GetInt("SIGNIN_BURST"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
			Issuer:       v.GetString("GOOGLE_ISSUER"),
		},
		MagicLink: MagicLinkConfig{
			Secret:  v.GetString("MAGIC_LINK_SECRET"),
			TTL:     time.Duration(v.GetInt("MAGIC_LINK_TTL_MINUTES")) * time.Minute,
			BaseURL: strings.TrimRight(baseURL, "/"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			User:     v.GetString("SMTP_USER"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
	if cfg.Google.RedirectURL == "" {
		cfg.Google.RedirectURL = cfg.MagicLink.BaseURL + "/auth/google/callback"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{cfg.MagicLink.BaseURL}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot work at all. Optional backends
// (Mongo, Redis, Google, SMTP) are allowed to be absent.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.MinPasswordLength < 1 {
		errs = append(errs, errors.New("MIN_PASSWORD_LENGTH must be positive"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL_HOURS must be positive"))
	}
	if c.MagicLink.TTL <= 0 {
		errs = append(errs, errors.New("MAGIC_LINK_TTL_MINUTES must be positive"))
	}
	if c.MongoDB.URI != "" && c.MongoDB.Database == "" {
		errs = append(errs, errors.New("MONGODB_DATABASE is required with MONGODB_URI"))
	}
	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
