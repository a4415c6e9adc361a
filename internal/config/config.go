package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir         string        `mapstructure:"MIGRATIONS_DIR"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	SessionSecret         string        `mapstructure:"SESSION_SECRET"`
	SessionTTL            time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookieSecure   bool          `mapstructure:"SESSION_COOKIE_SECURE"`
	SessionBackend        string        `mapstructure:"SESSION_BACKEND"`
	EncryptionKey         string        `mapstructure:"ENCRYPTION_KEY"`
	TwoFactorCodeLength   int           `mapstructure:"TWO_FACTOR_CODE_LENGTH"`
	TwoFactorCodeTTL      time.Duration `mapstructure:"TWO_FACTOR_CODE_TTL"`
	TwoFactorCooldown     time.Duration `mapstructure:"TWO_FACTOR_RESEND_COOLDOWN"`
	TOTPIssuer            string        `mapstructure:"TOTP_ISSUER"`
	MailBackend           string        `mapstructure:"MAIL_BACKEND"`
	SMTPHost              string        `mapstructure:"SMTP_HOST"`
	SMTPPort              int           `mapstructure:"SMTP_PORT"`
	SMTPUsername          string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword          string        `mapstructure:"SMTP_PASSWORD"`
	MailFrom              string        `mapstructure:"MAIL_FROM"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
	LoginRateLimitPerMin  int           `mapstructure:"LOGIN_RATE_LIMIT_PER_MIN"`
	RequestTimeout        time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReportInstitution     string        `mapstructure:"REPORT_INSTITUTION"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"CORS_ORIGINS", "SESSION_SECRET", "SESSION_TTL", "SESSION_COOKIE_SECURE", "SESSION_BACKEND",
	"ENCRYPTION_KEY", "TWO_FACTOR_CODE_LENGTH", "TWO_FACTOR_CODE_TTL", "TWO_FACTOR_RESEND_COOLDOWN",
	"TOTP_ISSUER", "MAIL_BACKEND", "SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD",
	"MAIL_FROM", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOGIN_RATE_LIMIT_PER_MIN",
	"REQUEST_TIMEOUT", "REPORT_INSTITUTION",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("SESSION_TTL", "336h")
	v.SetDefault("SESSION_BACKEND", "postgres")
	v.SetDefault("TWO_FACTOR_CODE_LENGTH", 6)
	v.SetDefault("TWO_FACTOR_CODE_TTL", "5m")
	v.SetDefault("TWO_FACTOR_RESEND_COOLDOWN", "60s")
	v.SetDefault("TOTP_ISSUER", "LiveHeart")
	v.SetDefault("MAIL_BACKEND", "log")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "noreply@liveheart.local")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("LOGIN_RATE_LIMIT_PER_MIN", 10)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("REPORT_INSTITUTION", "Central City Hospital")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: emailed codes are written to the log unless MAIL_BACKEND=smtp.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SessionKey returns the HMAC key used to sign session cookies. Hex values are
// decoded; anything else is used as raw bytes.
func (c *Config) SessionKey() []byte {
	if b, err := hex.DecodeString(c.SessionSecret); err == nil && len(b) > 0 {
		return b
	}
	return []byte(c.SessionSecret)
}

// Validate checks that the configuration is safe to run. Outside development
// SESSION_SECRET must be set and long enough to sign cookies. In production
// ENCRYPTION_KEY is required so TOTP secrets are never stored in the clear.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.SessionKey()) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}

	switch c.SessionBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("SESSION_BACKEND must be \"postgres\" or \"memory\", got %q", c.SessionBackend)
	}

	if c.IsProduction() && c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required in production")
	}
	if c.EncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}

	if c.TwoFactorCodeLength < 4 || c.TwoFactorCodeLength > 10 {
		return fmt.Errorf("TWO_FACTOR_CODE_LENGTH must be between 4 and 10, got %d", c.TwoFactorCodeLength)
	}

	switch c.MailBackend {
	case "log":
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_BACKEND is \"smtp\"")
		}
	default:
		return fmt.Errorf("MAIL_BACKEND must be \"smtp\" or \"log\", got %q", c.MailBackend)
	}

	return nil
}
