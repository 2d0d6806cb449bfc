package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	LogLevel               string
	DatabaseURL            string
	DBMaxOpenConns         int
	DBMaxIdleConns         int
	DBConnMaxLifetime      time.Duration
	RedisURL               string
	NATSURL                string
	EventChannel           string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	AvatarPlaceholder      string
	AvatarResolveTimeout   time.Duration
	AvatarMaxBytes         int64
	StatisticsCacheTTL     time.Duration
	SelectionTTL           time.Duration
	ExportTitle            string
	OpenAIAPIKey           string
	OpenAIBaseURL          string
	OpenAIModel            string
	RateLimitMax           int
	RateLimitWindow        time.Duration
	StreamPingInterval     time.Duration
	CORSOrigins            string
	AccessLog              bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// InsightsEnabled reports whether narrative statistics insights can be generated.
func (c Config) InsightsEnabled() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLASSROOM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Classroom API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("events.channel", "classroom:events")
	v.SetDefault("cloudinary.folder", "classroom/avatars")
	v.SetDefault("avatar.placeholder", "https://res.cloudinary.com/demo/image/upload/avatar-placeholder.png")
	v.SetDefault("avatar.resolve_timeout", "500ms")
	v.SetDefault("avatar.max_bytes", 2<<20)
	v.SetDefault("statistics.cache_ttl", "5m")
	v.SetDefault("selection.ttl", "12h")
	v.SetDefault("export.title", "Student Roster")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("rate_limit.max", 60)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("stream.ping_interval", "30s")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("access_log", false)

	durations := map[string]time.Duration{}
	for _, key := range []string{"avatar.resolve_timeout", "statistics.cache_ttl", "selection.ttl", "rate_limit.window", "stream.ping_interval", "db.conn_max_lifetime"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		DBMaxOpenConns:         v.GetInt("db.max_open_conns"),
		DBMaxIdleConns:         v.GetInt("db.max_idle_conns"),
		DBConnMaxLifetime:      durations["db.conn_max_lifetime"],
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventChannel:           v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		AvatarPlaceholder:      v.GetString("avatar.placeholder"),
		AvatarResolveTimeout:   durations["avatar.resolve_timeout"],
		AvatarMaxBytes:         v.GetInt64("avatar.max_bytes"),
		StatisticsCacheTTL:     durations["statistics.cache_ttl"],
		SelectionTTL:           durations["selection.ttl"],
		ExportTitle:            v.GetString("export.title"),
		OpenAIAPIKey:           v.GetString("openai.api_key"),
		OpenAIBaseURL:          v.GetString("openai.base_url"),
		OpenAIModel:            v.GetString("openai.model"),
		RateLimitMax:           v.GetInt("rate_limit.max"),
		RateLimitWindow:        durations["rate_limit.window"],
		StreamPingInterval:     durations["stream.ping_interval"],
		CORSOrigins:            v.GetString("cors.origins"),
		AccessLog:              v.GetBool("access_log"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.AvatarMaxBytes <= 0 {
		cfg.AvatarMaxBytes = 2 << 20
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 60
	}

	return cfg, nil
}
