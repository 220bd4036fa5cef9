package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/fyp-go-api/internal/workflow"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	AllowOrigins           string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	RealtimeChannel        string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	SendGridAPIKey         string
	MailFromName           string
	MailFromAddress        string
	SweepSchedule          string
	SweepTimeout           time.Duration
	SweepLeaseTTL          time.Duration
	CompletionPolicy       workflow.CompletionPolicy
	NotificationWorkers    int
	NotificationBuffer     int
	WorkflowMaxAttempts    int
	ResultCacheTTL         time.Duration
	UploadMaxBytes         int64
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
	v.SetEnvPrefix("FYP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "FYP API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("http.allow_origins", "*")
	v.SetDefault("realtime.channel", "fyp:realtime")
	v.SetDefault("cloudinary.folder", "fyp/submissions")
	v.SetDefault("mail.from_name", "FYP Office")
	v.SetDefault("mail.from_address", "no-reply@fyp.local")
	v.SetDefault("deadline.sweep_schedule", "@every 5m")
	v.SetDefault("deadline.sweep_timeout", "4m")
	v.SetDefault("deadline.lease_ttl", "5m")
	v.SetDefault("evaluation.completion_policy", string(workflow.CompletionSubmitted))
	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.buffer", 256)
	v.SetDefault("workflow.max_attempts", 3)
	v.SetDefault("results.cache_ttl", "10m")
	v.SetDefault("upload.max_size_mb", 20)
}

func fromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	sweepTimeout, err := parseDuration(v, "deadline.sweep_timeout")
	if err != nil {
		return Config{}, err
	}
	leaseTTL, err := parseDuration(v, "deadline.lease_ttl")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "results.cache_ttl")
	if err != nil {
		return Config{}, err
	}

	policy, err := workflow.ParseCompletionPolicy(v.GetString("evaluation.completion_policy"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid evaluation completion policy: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		AllowOrigins:           strings.TrimSpace(v.GetString("http.allow_origins")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		RealtimeChannel:        v.GetString("realtime.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		SendGridAPIKey:         v.GetString("sendgrid.api_key"),
		MailFromName:           v.GetString("mail.from_name"),
		MailFromAddress:        v.GetString("mail.from_address"),
		SweepSchedule:          strings.TrimSpace(v.GetString("deadline.sweep_schedule")),
		SweepTimeout:           sweepTimeout,
		SweepLeaseTTL:          leaseTTL,
		CompletionPolicy:       policy,
		NotificationWorkers:    v.GetInt("notification.workers"),
		NotificationBuffer:     v.GetInt("notification.buffer"),
		WorkflowMaxAttempts:    v.GetInt("workflow.max_attempts"),
		ResultCacheTTL:         cacheTTL,
		UploadMaxBytes:         int64(v.GetInt("upload.max_size_mb")) << 20,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.NotificationWorkers <= 0 {
		cfg.NotificationWorkers = 4
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = 256
	}
	if cfg.WorkflowMaxAttempts <= 0 {
		cfg.WorkflowMaxAttempts = 3
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 20 << 20
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
