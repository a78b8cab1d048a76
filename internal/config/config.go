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
	AppName               string
	AppEnv                string
	AppPort               string
	LogLevel              string
	DatabaseURL           string
	RedisURL              string
	NATSURL               string
	RealtimeChannel       string
	JWTSecret             string
	JWTTTL                time.Duration
	SendGridAPIKey        string
	MailFrom              string
	RecoveryThrottle      time.Duration
	AuthRateLimit         int
	AuthRateWindow        time.Duration
	NotificationAudioPath string
	AllowOrigins          string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("VHAND")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Virtual Hand")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("realtime.channel", "virtualhand")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("mail.from", "no-reply@virtualhand.local")
	v.SetDefault("recovery.throttle", "10m")
	v.SetDefault("auth.rate_limit", 10)
	v.SetDefault("auth.rate_window", "1m")
	v.SetDefault("notification_audio_path", "client/static/ding.wav")
	v.SetDefault("allow_origins", "*")

	jwtTTL, err := parseDuration(v, "jwt.ttl", "24h")
	if err != nil {
		return Config{}, fmt.Errorf("invalid jwt ttl: %w", err)
	}

	throttle, err := parseDuration(v, "recovery.throttle", "10m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid recovery throttle: %w", err)
	}

	rateWindow, err := parseDuration(v, "auth.rate_window", "1m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid auth rate window: %w", err)
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		LogLevel:              strings.ToLower(v.GetString("log.level")),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		NATSURL:               v.GetString("nats.url"),
		RealtimeChannel:       v.GetString("realtime.channel"),
		JWTSecret:             v.GetString("jwt.secret"),
		JWTTTL:                jwtTTL,
		SendGridAPIKey:        v.GetString("sendgrid.api_key"),
		MailFrom:              v.GetString("mail.from"),
		RecoveryThrottle:      throttle,
		AuthRateLimit:         v.GetInt("auth.rate_limit"),
		AuthRateWindow:        rateWindow,
		NotificationAudioPath: v.GetString("notification_audio_path"),
		AllowOrigins:          normalizeOrigins(v.GetString("allow_origins")),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 10
	}

	return cfg, nil
}

// normalizeOrigins trims a comma separated origin list, falling back to "*" when empty.
func normalizeOrigins(raw string) string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
