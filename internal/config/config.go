package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// LLM providers
	OpenAIAPIKey     string
	OpenAIChatModel  string
	OpenAIEmbedModel string
	GeminiAPIKey     string
	GeminiModelID    string

	// Google Calendar integration
	GoogleClientID     string
	GoogleClientSecret string
	CalendarTimezone   string
	CalendarDaysAhead  int

	// Conversation defaults
	SessionMessageCap  int
	HistoryWindow      int
	RetrievalTopK      int
	ProviderTimeout    time.Duration
	SettingsCacheTTL   time.Duration
	HistoryCacheTTL    time.Duration
	DefaultTemperature float64

	// AWS (documents bucket + SES fallback mail)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	DocumentsBucket     string

	// Outbound email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	// WhatsApp webhook (Twilio)
	TwilioAuthToken string

	// Embeddable chat widget served at /webchat/widget.js
	WidgetJSPath string

	AdminJWTSecret     string
	CORSAllowedOrigins string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIChatModel:  getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		OpenAIEmbedModel: getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:    getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		CalendarTimezone:   getEnv("CALENDAR_TIMEZONE", "America/Mexico_City"),
		CalendarDaysAhead:  getEnvAsInt("CALENDAR_DAYS_AHEAD", 7),

		SessionMessageCap:  getEnvAsInt("SESSION_MESSAGE_CAP", 24),
		HistoryWindow:      getEnvAsInt("HISTORY_WINDOW", 10),
		RetrievalTopK:      getEnvAsInt("RETRIEVAL_TOP_K", 5),
		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
		SettingsCacheTTL:   getEnvAsDuration("SETTINGS_CACHE_TTL", 5*time.Minute),
		HistoryCacheTTL:    getEnvAsDuration("HISTORY_CACHE_TTL", 24*time.Hour),
		DefaultTemperature: getEnvAsFloat("DEFAULT_TEMPERATURE", 0.3),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		DocumentsBucket:     getEnv("DOCUMENTS_BUCKET", "evolvian-documents"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Evolvian Assistant"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		TwilioAuthToken: getEnv("TWILIO_AUTH_TOKEN", ""),

		WidgetJSPath: getEnv("WIDGET_JS_PATH", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
