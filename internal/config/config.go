package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all environment-driven settings for the service.
// Every external credential is optional: a missing value puts the
// corresponding client into degraded no-op mode instead of failing startup.
type Config struct {
	AppEnv   string
	BotName  string
	LogLevel string

	HTTPListenAddr   string
	MetricsNamespace string

	OpenAIAPIKey string
	OpenAIModel  string
	LLMTimeout   time.Duration

	MongoURI               string
	MongoAllowInvalidCerts bool

	RedisURL string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	NudgeHours    int
	NudgeInterval time.Duration
	NudgeText     string

	AdminContact string

	ConsultAudioPrice int64
	ConsultVideoPrice int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		BotName:  getEnv("BOT_NAME", "AarogyaAI"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":"+getEnv("PORT", "8080")),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "aarogya"),

		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4"),

		MongoURI: os.Getenv("MONGODB_URI"),

		RedisURL: os.Getenv("REDIS_URL"),

		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_WHATSAPP_FROM"),

		NudgeText: getEnv("NUDGE_TEXT",
			"We noticed you haven't continued our chat. Complete your consultation today and get 5% off!"),

		AdminContact: os.Getenv("ADMIN_CONTACT"),
	}

	var err error
	if cfg.LLMTimeout, err = getDuration("LLM_TIMEOUT", 12*time.Second); err != nil {
		return nil, err
	}
	if cfg.NudgeInterval, err = getDuration("NUDGE_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.NudgeHours, err = getInt("NUDGE_HOURS", 20); err != nil {
		return nil, err
	}
	if cfg.ConsultAudioPrice, err = getInt64("CONSULT_AUDIO_PRICE", 99); err != nil {
		return nil, err
	}
	if cfg.ConsultVideoPrice, err = getInt64("CONSULT_VIDEO_PRICE", 249); err != nil {
		return nil, err
	}
	cfg.MongoAllowInvalidCerts = getBool("MONGODB_ALLOW_INVALID_CERTS", false)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		return fallback
	}
	return parsed
}

func getInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
