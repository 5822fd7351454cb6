package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	LogFormat     string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// LLM providers
	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string
	AWSRegion      string
	AWSAccessKeyID string
	AWSSecretKey   string
	AWSEndpoint    string

	// Clinic scheduling
	ClinicName      string
	OpenTime        string
	CloseTime       string
	SlotStep        time.Duration
	DefaultLocation string
	HomeVisitCities []string
	UTCOffsetHours  int

	// Conversation budgets
	HistoryWindow       int
	ClassifyTimeout     time.Duration
	FirstPassTimeout    time.Duration
	SecondPassTimeout   time.Duration
	AvailabilityTimeout time.Duration
	NotifyTimeout       time.Duration
	StudyCacheTTL       time.Duration

	// Email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	// HTTP surface
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	ChatRateLimit      int
	ChatRateWindow     time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpoint:    getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ClinicName:      getEnv("CLINIC_NAME", "Laboratorio Clínico"),
		OpenTime:        getEnv("OPEN_TIME", "07:00"),
		CloseTime:       getEnv("CLOSE_TIME", "17:00"),
		SlotStep:        getEnvAsDuration("SLOT_STEP", 30*time.Minute),
		DefaultLocation: getEnv("DEFAULT_LOCATION", "sede_principal"),
		HomeVisitCities: getEnvAsList("HOME_VISIT_CITIES", []string{"Maracay", "Colonia Tovar"}),
		UTCOffsetHours:  getEnvAsInt("UTC_OFFSET_HOURS", -4),

		HistoryWindow:       getEnvAsInt("HISTORY_WINDOW", 20),
		ClassifyTimeout:     getEnvAsDuration("CLASSIFY_TIMEOUT", 10*time.Second),
		FirstPassTimeout:    getEnvAsDuration("FIRST_PASS_TIMEOUT", 15*time.Second),
		SecondPassTimeout:   getEnvAsDuration("SECOND_PASS_TIMEOUT", 15*time.Second),
		AvailabilityTimeout: getEnvAsDuration("AVAILABILITY_TIMEOUT", 10*time.Second),
		NotifyTimeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
		StudyCacheTTL:       getEnvAsDuration("STUDY_CACHE_TTL", 10*time.Minute),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Laboratorio Clínico"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Laboratorio Clínico"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		ChatRateLimit:      getEnvAsInt("CHAT_RATE_LIMIT", 30),
		ChatRateWindow:     getEnvAsDuration("CHAT_RATE_WINDOW", time.Minute),
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
