// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGenerationTimeout = 6500 * time.Millisecond
	defaultDeliveryTimeout   = 10 * time.Second
	defaultMaxTextLength     = 1000
)

// Config holds application configuration. Secrets are not part of it; they
// are read from Parameter Store under ParamPrefix.
type Config struct {
	ParamPrefix           string
	LeadsTable            string
	WhatsAppPhoneNumberID string
	BusinessName          string
	GenerationTimeout     time.Duration
	DeliveryTimeout       time.Duration
	MaxTextLength         int
	LogLevel              string
	Port                  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ParamPrefix:           strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
		LeadsTable:            strings.TrimSpace(os.Getenv("LEADS_TABLE")),
		WhatsAppPhoneNumberID: strings.TrimSpace(os.Getenv("WHATSAPP_PHONE_NUMBER_ID")),
		BusinessName:          getEnv("BUSINESS_NAME", "our studio"),
		GenerationTimeout:     getEnvAsDuration("GENERATION_TIMEOUT", defaultGenerationTimeout),
		DeliveryTimeout:       getEnvAsDuration("DELIVERY_TIMEOUT", defaultDeliveryTimeout),
		MaxTextLength:         getEnvAsInt("MAX_TEXT_LENGTH", defaultMaxTextLength),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		Port:                  getEnv("PORT", "8080"),
	}
	if cfg.ParamPrefix == "" {
		return nil, errors.New("config: PARAM_PREFIX is required")
	}
	if cfg.WhatsAppPhoneNumberID == "" {
		return nil, errors.New("config: WHATSAPP_PHONE_NUMBER_ID is required")
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = defaultMaxTextLength
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
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
