package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Discord
	BotToken string
	AppID    string
	GuildID  string // optional: restrict slash-command registration to one guild
	BotName  string
	Version  string

	// Spotify (optional — if unset, Spotify links fail with a service-unavailable error; YouTube links and searches still work)
	SpotifyClientID     string
	SpotifyClientSecret string

	// Database
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Session engine (C5) / queue subsystem (C4)
	QueueCap          int
	HistoryCap        int
	PendingCap        int
	OverflowBatchSize int

	// Voice idle supervisor (C9)
	VoiceTimeoutMin int

	// Media resolver (C2) / duration filter
	MaxDurationSec int

	// Process runner (C1)
	MaxConcurrentProcessesPerGuild int
	PlaylistTitleTimeoutSec        int
	PlaylistEnumerateTimeoutSec    int
	SpotifyTimeoutSec              int

	// State coordinator (C6)
	RateLimitWindowSec   int
	RateLimitMaxRequests int
	StaleLockTTLSec      int
	UIDebounceMS         int

	// Guild-settings cache (C11)
	SettingsCacheTTLMin   int
	SettingsCacheCapacity int
}

// Load reads configuration from environment variables, loading a .env
// file first if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	botToken := os.Getenv("DISCORD_BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN environment variable is required")
	}
	if len(botToken) < 50 {
		return nil, fmt.Errorf("invalid DISCORD_BOT_TOKEN format (too short)")
	}

	appID := os.Getenv("DISCORD_APP_ID")
	if appID == "" {
		return nil, fmt.Errorf("DISCORD_APP_ID environment variable is required")
	}

	cfg := &Config{
		BotToken: botToken,
		AppID:    appID,
		GuildID:  os.Getenv("DISCORD_GUILD_ID"),
		BotName:  getEnvOrDefault("BOT_NAME", "Voice Session Engine"),
		Version:  getEnvOrDefault("VERSION", "1.0.0"),

		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		QueueCap:          getEnvInt("QUEUE_CAP", 3),
		HistoryCap:        getEnvInt("HISTORY_CAP", 10),
		PendingCap:        getEnvInt("PENDING_CAP", 50),
		OverflowBatchSize: getEnvInt("OVERFLOW_BATCH_SIZE", 3),

		VoiceTimeoutMin: getEnvInt("VOICE_TIMEOUT_MIN", 5),

		MaxDurationSec: getEnvInt("MAX_DURATION_SEC", 900),

		MaxConcurrentProcessesPerGuild: getEnvInt("MAX_CONCURRENT_PROCESSES_PER_GUILD", 2),
		PlaylistTitleTimeoutSec:        getEnvInt("PLAYLIST_TITLE_TIMEOUT_SEC", 15),
		PlaylistEnumerateTimeoutSec:    getEnvInt("PLAYLIST_ENUMERATE_TIMEOUT_SEC", 45),
		SpotifyTimeoutSec:              getEnvInt("SPOTIFY_TIMEOUT_SEC", 30),

		RateLimitWindowSec:   getEnvInt("RATE_LIMIT_WINDOW_SEC", 10),
		RateLimitMaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),
		StaleLockTTLSec:      getEnvInt("STALE_LOCK_TTL_SEC", 60),
		UIDebounceMS:         getEnvInt("UI_DEBOUNCE_MS", 100),

		SettingsCacheTTLMin:   getEnvInt("SETTINGS_CACHE_TTL_MIN", 5),
		SettingsCacheCapacity: getEnvInt("SETTINGS_CACHE_CAPACITY", 50),
	}

	return cfg, nil
}

// GetSafeToken returns a masked version of the token for logging.
func (c *Config) GetSafeToken() string {
	if len(c.BotToken) < 15 {
		return "***"
	}
	return c.BotToken[:10] + "..." + c.BotToken[len(c.BotToken)-4:]
}

// VoiceTimeout returns VoiceTimeoutMin as a time.Duration.
func (c *Config) VoiceTimeout() time.Duration {
	return time.Duration(c.VoiceTimeoutMin) * time.Minute
}

// HasSpotify reports whether Spotify credentials were configured.
func (c *Config) HasSpotify() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// HasDatabase reports whether a database connection was configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// ClampPoolMax implements max=clamp(2*guildCount,5,20).
func ClampPoolMax(guildCount int) int32 {
	return int32(clamp(2*guildCount, 5, 20))
}

// ClampPoolMin implements min=clamp(guildCount,2,5).
func ClampPoolMin(guildCount int) int32 {
	return int32(clamp(guildCount, 2, 5))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

