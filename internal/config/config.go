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
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	OCREndpoint            string
	OCRAPIKey              string
	EventChannelBase       string
	RunConcurrency         int
	RunCallTimeout         time.Duration
	RunStartRateLimit      int
	UploadRateLimit        int
	UploadMaxMB            int
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
	v.SetEnvPrefix("PROMPTFORGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "PromptForge API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "promptforge/attachments")
	v.SetDefault("events.channel_base", "promptforge")
	v.SetDefault("run.concurrency", 4)
	v.SetDefault("run.call_timeout", "2m")
	v.SetDefault("run.start_rate_limit", 10)
	v.SetDefault("upload.rate_limit", 30)
	v.SetDefault("upload.max_mb", 10)

	callTimeoutString := v.GetString("run.call_timeout")
	if callTimeoutString == "" {
		callTimeoutString = "2m"
	}

	callTimeout, err := time.ParseDuration(callTimeoutString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid run call timeout: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		OCREndpoint:            v.GetString("ocr.endpoint"),
		OCRAPIKey:              v.GetString("ocr.api_key"),
		EventChannelBase:       v.GetString("events.channel_base"),
		RunConcurrency:         v.GetInt("run.concurrency"),
		RunCallTimeout:         callTimeout,
		RunStartRateLimit:      v.GetInt("run.start_rate_limit"),
		UploadRateLimit:        v.GetInt("upload.rate_limit"),
		UploadMaxMB:            v.GetInt("upload.max_mb"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.RunConcurrency <= 0 {
		cfg.RunConcurrency = 4
	}

	if cfg.UploadMaxMB <= 0 {
		cfg.UploadMaxMB = 10
	}

	return cfg, nil
}
