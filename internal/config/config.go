package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	API       APIConfig
	Session   SessionConfig
	Assistant AssistantConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port              string
	Env               string
	LogLevel          string
	AllowRegistration bool
}

type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	Database      string
	Schema        string
	SSLMode       string
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

// APIConfig holds the shared secret used by the integration endpoints
type APIConfig struct {
	SecretToken string
}

type SessionConfig struct {
	Timezone          string
	DailyResetEnabled bool
}

type AssistantConfig struct {
	Provider     string // "webhook" or "gemini"
	WebhookURL   string
	WebhookToken string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

type RateLimitConfig struct {
	RequestsPerWindow int
	WindowSeconds     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("ALLOW_REGISTRATION", false)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MIGRATIONS_DIR", "migrations")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("SESSION_TIMEZONE", "Asia/Jakarta")
	viper.SetDefault("DAILY_RESET_ENABLED", false)
	viper.SetDefault("ASSISTANT_PROVIDER", "webhook")
	viper.SetDefault("ASSISTANT_GEMINI_MODEL", "gemini-2.0-flash-001")
	viper.SetDefault("ASSISTANT_TIMEOUT_SECONDS", 30)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 60)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:              viper.GetString("SERVER_PORT"),
			Env:               viper.GetString("SERVER_ENV"),
			LogLevel:          viper.GetString("LOG_LEVEL"),
			AllowRegistration: viper.GetBool("ALLOW_REGISTRATION"),
		},
		Database: DatabaseConfig{
			Host:          viper.GetString("DB_HOST"),
			Port:          viper.GetString("DB_PORT"),
			User:          viper.GetString("DB_USER"),
			Password:      viper.GetString("DB_PASSWORD"),
			Database:      viper.GetString("DB_DATABASE"),
			Schema:        viper.GetString("DB_SCHEMA"),
			SSLMode:       viper.GetString("DB_SSLMODE"),
			MigrationsDir: viper.GetString("DB_MIGRATIONS_DIR"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		API: APIConfig{
			SecretToken: viper.GetString("API_SECRET_TOKEN"),
		},
		Session: SessionConfig{
			Timezone:          viper.GetString("SESSION_TIMEZONE"),
			DailyResetEnabled: viper.GetBool("DAILY_RESET_ENABLED"),
		},
		Assistant: AssistantConfig{
			Provider:     viper.GetString("ASSISTANT_PROVIDER"),
			WebhookURL:   viper.GetString("ASSISTANT_WEBHOOK_URL"),
			WebhookToken: viper.GetString("ASSISTANT_WEBHOOK_TOKEN"),
			GeminiAPIKey: viper.GetString("GEMINI_API_KEY"),
			GeminiModel:  viper.GetString("ASSISTANT_GEMINI_MODEL"),
			Timeout:      time.Duration(viper.GetInt("ASSISTANT_TIMEOUT_SECONDS")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: viper.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds:     viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
	}
}

// Location resolves the shop time zone, falling back to UTC+7 when tzdata is unavailable
func (c SessionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: unknown timezone %q, using UTC+7: %v", c.Timezone, err)
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// DSN builds the postgres connection string for the pgx driver
func (c DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Database +
		"?sslmode=" + c.SSLMode + "&search_path=" + c.Schema
}

// Addr returns host:port for the redis client
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
