package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration shared by the mailcal services
type Config struct {
	Port             string
	DatabaseURL      string
	Version          string
	LogLevel         string
	KafkaBrokers     []string // Kafka bootstrap servers
	OpenAIKey        string
	OpenAITimeout    int    // OpenAI API timeout in seconds
	SendGridAPIKey   string // SendGrid API key for dispatching calendar invitations
	SenderEmail      string // From address on dispatched invitations
	PublicBaseURL    string // Base URL used to build artifact subscription links
	GmailCredentials string // Path to Gmail OAuth credentials.json (token.json lives next to it)
	InboxPollMinutes int    // Inbox polling interval in minutes (0 disables polling)
	InboxMaxResults  int    // Max unread messages fetched per inbox check
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Version:          getEnv("VERSION", "1.0.0"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAITimeout:    getEnvInt("OPENAI_TIMEOUT", 60),
		SendGridAPIKey:   os.Getenv("SENDGRID_API_KEY"),
		SenderEmail:      getEnv("SENDER_EMAIL", "noreply@mailcal.app"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		GmailCredentials: os.Getenv("GMAIL_CREDENTIALS"),
		InboxPollMinutes: getEnvInt("INBOX_POLL_MINUTES", 1),
		InboxMaxResults:  getEnvInt("INBOX_MAX_RESULTS", 10),
	}

	return config
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// splitList splits a comma-separated environment value into trimmed entries
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger(service string) zerolog.Logger {
	// Configure zerolog to output JSON without newlines
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Create logger with JSON output to stdout
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", service).
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
