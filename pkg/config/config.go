package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting the server, worker and seed commands read from the environment.
type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBDriver       string `mapstructure:"DB_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDB        string `mapstructure:"MONGO_DB"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	KafkaDLQ     string `mapstructure:"KAFKA_DLQ_TOPIC"`

	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTTTL         time.Duration `mapstructure:"JWT_TTL"`
	JWTRememberTTL time.Duration `mapstructure:"JWT_REMEMBER_TTL"`
	AuthRateLimit  float64       `mapstructure:"AUTH_RATE_LIMIT"`

	PostsPerPage int `mapstructure:"POSTS_PER_PAGE"`

	StorageBackend   string `mapstructure:"STORAGE_BACKEND"`
	UploadDir        string `mapstructure:"UPLOAD_DIR"`
	CloudinaryURL    string `mapstructure:"CLOUDINARY_URL"`
	CloudinaryFolder string `mapstructure:"CLOUDINARY_FOLDER"`
	WebPSidecar      bool   `mapstructure:"WEBP_SIDECAR"`
	MaxUploadMB      int    `mapstructure:"MAX_UPLOAD_MB"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
	AppBaseURL   string `mapstructure:"APP_BASE_URL"`

	FirebaseCredentialsPath string `mapstructure:"FIREBASE_CREDENTIALS_PATH"`
	MetricsPort             string `mapstructure:"METRICS_PORT"`
	CORSOrigins             string `mapstructure:"CORS_ORIGINS"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"ENV":                       "development",
	"LOG_LEVEL":                 "info",
	"DB_DRIVER":                 "postgres",
	"DATABASE_URL":              "",
	"DB_MAX_OPEN_CONNS":         25,
	"DB_MAX_IDLE_CONNS":         5,
	"MONGO_URI":                 "",
	"MONGO_DB":                  "questlog",
	"REDIS_URL":                 "",
	"KAFKA_BROKERS":             "",
	"KAFKA_TOPIC":               "questlog.events",
	"KAFKA_GROUP_ID":            "questlog-worker",
	"KAFKA_DLQ_TOPIC":           "questlog.events.dlq",
	"JWT_SECRET":                "",
	"JWT_TTL":                   "24h",
	"JWT_REMEMBER_TTL":          "720h",
	"AUTH_RATE_LIMIT":           5,
	"POSTS_PER_PAGE":            10,
	"STORAGE_BACKEND":           "local",
	"UPLOAD_DIR":                "./static",
	"CLOUDINARY_URL":            "",
	"CLOUDINARY_FOLDER":         "questlog",
	"WEBP_SIDECAR":              true,
	"MAX_UPLOAD_MB":             5,
	"SMTP_HOST":                 "",
	"SMTP_PORT":                 587,
	"SMTP_USERNAME":             "",
	"SMTP_PASSWORD":             "",
	"MAIL_FROM":                 "no-reply@questlog.local",
	"APP_BASE_URL":              "http://localhost:8080",
	"FIREBASE_CREDENTIALS_PATH": "",
	"METRICS_PORT":              "9090",
	"CORS_ORIGINS":              "*",
}

// Load reads .env (if present) and the process environment into a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, assuming environment variables are set.")
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported DB_DRIVER %q", ErrInvalidConfig, c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required", ErrInvalidConfig)
	}
	if c.IsProduction() && len(c.JWTSecret) < 16 {
		return fmt.Errorf("%w: JWT_SECRET must be at least 16 characters in production", ErrInvalidConfig)
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty, using an insecure development secret")
		c.JWTSecret = "questlog-dev-secret"
	}
	switch c.StorageBackend {
	case "local":
	case "cloudinary":
		if c.CloudinaryURL == "" {
			return fmt.Errorf("%w: CLOUDINARY_URL is required when STORAGE_BACKEND=cloudinary", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported STORAGE_BACKEND %q", ErrInvalidConfig, c.StorageBackend)
	}
	if c.PostsPerPage < 1 || c.PostsPerPage > 100 {
		return fmt.Errorf("%w: POSTS_PER_PAGE must be between 1 and 100", ErrInvalidConfig)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("%w: MAX_UPLOAD_MB must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Brokers splits KAFKA_BROKERS; an empty result means events are processed in-process.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
