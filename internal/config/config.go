package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the environment-derived defaults for the oasis command.
// Command-line flags override every field.
type Config struct {
	Name           string
	Port           int
	RelayURLs      []string
	CredKey        string
	DataPath       string
	Store          string
	RedisURL       string
	Broadcast      string
	P2PListen      string
	P2PPeers       []string
	ChatScope      string
	Profile        string
	LogLevel       string
	LogPretty      bool
	AllowedOrigins []string

	AIURL            string
	AIKey            string
	AIModel          string
	AITimeout        time.Duration
	ReplyProbability float64
	OnlineJitter     time.Duration
}

// Load reads .env when present, then OASIS_* variables. RELAY is honored
// for the relay list like the other portal apps.
func Load() *Config {
	_ = godotenv.Load()

	relays := getEnv("OASIS_RELAY", os.Getenv("RELAY"))

	return &Config{
		Name:           getEnv("OASIS_NAME", "oasis"),
		Port:           getInt("OASIS_PORT", 8080),
		RelayURLs:      splitList(relays),
		CredKey:        os.Getenv("OASIS_CRED_KEY"),
		DataPath:       getEnv("OASIS_DATA_PATH", "./data"),
		Store:          getEnv("OASIS_STORE", "pebble"),
		RedisURL:       os.Getenv("OASIS_REDIS_URL"),
		Broadcast:      getEnv("OASIS_BROADCAST", "local"),
		P2PListen:      getEnv("OASIS_P2P_LISTEN", "/ip4/0.0.0.0/tcp/0"),
		P2PPeers:       splitList(os.Getenv("OASIS_P2P_PEERS")),
		ChatScope:      getEnv("OASIS_CHAT_SCOPE", "profile"),
		Profile:        os.Getenv("OASIS_PROFILE"),
		LogLevel:       getEnv("OASIS_LOG_LEVEL", "info"),
		LogPretty:      getBool("OASIS_LOG_PRETTY", false),
		AllowedOrigins: splitList(getEnv("OASIS_ALLOWED_ORIGINS", "*")),

		AIURL:            os.Getenv("OASIS_AI_URL"),
		AIKey:            os.Getenv("OASIS_AI_KEY"),
		AIModel:          getEnv("OASIS_AI_MODEL", "gpt-4o-mini"),
		AITimeout:        getDuration("OASIS_AI_TIMEOUT", 0),
		ReplyProbability: getFloat("OASIS_REPLY_PROBABILITY", 0.2),
		OnlineJitter:     getDuration("OASIS_ONLINE_JITTER", 8*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
