package config

import (
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/qcom/phoneauth/internal/apperror"
	"golang.org/x/crypto/bcrypt"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
	StoreMemory   = "memory"

	NotifierTwilio = "twilio"
	NotifierLog    = "log"
)

type Config struct {
	Env      string
	LogLevel string
	Server   ServerConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OTP      OTPConfig
	Cookie   CookieConfig
	Twilio   TwilioConfig
	Stores   StoreConfig
	Notifier string
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type OTPConfig struct {
	Length   int
	TTL      time.Duration
	HashCost int
}

type CookieConfig struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	ContentSID  string
	Channel     string
	BaseURL     string
}

// StoreConfig selects the backends for OTP records and identities.
type StoreConfig struct {
	OTP  string
	User string
}

// IsProduction reports whether the process runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", EnvDevelopment)
	refreshExpiry := getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour)

	cfg := &Config{
		Env:      env,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "PhoneAuth"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: refreshExpiry,
		},
		OTP: OTPConfig{
			Length:   getEnvAsInt("OTP_LENGTH", 6),
			TTL:      getEnvAsDuration("OTP_TTL", 300*time.Second),
			HashCost: getEnvAsInt("OTP_HASH_COST", bcrypt.DefaultCost),
		},
		Cookie: CookieConfig{
			Name:     "refreshToken",
			Secure:   env == EnvProduction,
			SameSite: parseSameSite(getEnv("COOKIE_SAMESITE", "lax")),
			MaxAge:   refreshExpiry,
		},
		Twilio: TwilioConfig{
			AccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),
			ContentSID:  getEnv("TWILIO_CONTENT_SID", ""),
			Channel:     getEnv("TWILIO_CHANNEL", "whatsapp"),
			BaseURL:     getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		},
		Stores: StoreConfig{
			OTP:  getEnv("OTP_STORE", StoreRedis),
			User: getEnv("USER_STORE", StoreDynamoDB),
		},
		Notifier: getEnv("NOTIFIER", NotifierTwilio),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings as apperror.ConfigError.
func (c *Config) Validate() error {
	const op = "config.Load"

	if c.JWT.SecretKey == "" {
		return apperror.New(apperror.ConfigError, op, "JWT_SECRET_KEY environment variable is required")
	}
	if len(c.JWT.SecretKey) < 32 {
		return apperror.New(apperror.ConfigError, op, "JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}
	if c.OTP.Length < 4 || c.OTP.Length > 8 {
		return apperror.Newf(apperror.ConfigError, op, "OTP_LENGTH must be between 4 and 8, got %d", c.OTP.Length)
	}
	if c.OTP.TTL <= 0 {
		return apperror.New(apperror.ConfigError, op, "OTP_TTL must be positive")
	}
	if c.OTP.HashCost < bcrypt.MinCost || c.OTP.HashCost > bcrypt.MaxCost {
		return apperror.Newf(apperror.ConfigError, op, "OTP_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch c.Stores.OTP {
	case StoreRedis, StoreDynamoDB, StoreMemory:
	default:
		return apperror.Newf(apperror.ConfigError, op, "unknown OTP_STORE %q", c.Stores.OTP)
	}
	switch c.Stores.User {
	case StoreDynamoDB, StoreMemory:
	default:
		return apperror.Newf(apperror.ConfigError, op, "unknown USER_STORE %q", c.Stores.User)
	}

	switch c.Notifier {
	case NotifierTwilio:
		var missing []string
		for name, v := range map[string]string{
			"TWILIO_ACCOUNT_SID":  c.Twilio.AccountSID,
			"TWILIO_AUTH_TOKEN":   c.Twilio.AuthToken,
			"TWILIO_PHONE_NUMBER": c.Twilio.PhoneNumber,
		} {
			if v == "" {
				missing = append(missing, name)
			}
		}
		if c.Twilio.Channel == "whatsapp" && c.Twilio.ContentSID == "" {
			missing = append(missing, "TWILIO_CONTENT_SID")
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			return apperror.Newf(apperror.ConfigError, op, "missing Twilio configuration: %s", strings.Join(missing, ", "))
		}
		if c.Twilio.Channel != "whatsapp" && c.Twilio.Channel != "sms" {
			return apperror.Newf(apperror.ConfigError, op, "TWILIO_CHANNEL must be whatsapp or sms, got %q", c.Twilio.Channel)
		}
	case NotifierLog:
		if c.IsProduction() {
			return apperror.New(apperror.ConfigError, op, "NOTIFIER=log is not allowed in production")
		}
	default:
		return apperror.Newf(apperror.ConfigError, op, "unknown NOTIFIER %q", c.Notifier)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("5m") or bare seconds ("300").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseSameSite(v string) http.SameSite {
	if strings.EqualFold(v, "strict") {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}
