// package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// backend REST API
	APIBaseURL string

	// nats
	NatsURL string

	// telegram
	TGApiID   int
	TGApiHash string

	// parser identity (which Parser record owns our phones/chats)
	ParserID string

	// local peer cache
	PeerDBPath string

	// crawl profile (overridable via CRAWL_PROFILE yaml file)
	Profile Profile

	// server
	HTTPPort int

	// logging
	LogLevel string
	LogFile  string
}

// Profile holds tunable crawl policy knobs. Loaded from a yaml file when
// CRAWL_PROFILE is set, otherwise defaults apply.
type Profile struct {
	// requests per second against telegram, per session
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// how many phones may be wired to one chat
	JoinCeiling int `yaml:"join_ceiling"`

	// seconds between polls while waiting for an operator-supplied login code
	CodePollSeconds int `yaml:"code_poll_seconds"`

	// telegram's per-account dialog ceiling; phones at or above it go FULL
	DialogLimit int `yaml:"dialog_limit"`

	// nats subjects
	HighPrioSubject string `yaml:"high_prio_subject"`
	LowPrioSubject  string `yaml:"low_prio_subject"`
}

// DefaultProfile returns the built-in crawl policy.
func DefaultProfile() Profile {
	return Profile{
		RateLimit:       2.0,
		RateBurst:       1,
		JoinCeiling:     3,
		CodePollSeconds: 10,
		DialogLimit:     500,
		HighPrioSubject: "tasks.high",
		LowPrioSubject:  "tasks.low",
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000/api/v1"),
		NatsURL:    getEnv("NATS_URL", "nats://localhost:4222"),
		TGApiID:    getEnvInt("TG_API_ID", 0),
		TGApiHash:  getEnv("TG_API_HASH", ""),
		ParserID:   getEnv("PARSER_ID", ""),
		PeerDBPath: getEnv("PEER_DB_PATH", "./peers.db"),
		HTTPPort:   getEnvInt("HTTP_PORT", 3200),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFile:    getEnv("LOG_FILE", "./logs/crawler.log"),
		Profile:    DefaultProfile(),
	}

	if path := os.Getenv("CRAWL_PROFILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read crawl profile: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg.Profile); err != nil {
			return nil, fmt.Errorf("parse crawl profile: %w", err)
		}
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
