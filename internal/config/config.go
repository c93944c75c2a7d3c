package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all runtime settings for the bot.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	DiscordToken   string
	DiscordGuildID string
	DeveloperID    string
	CallTimeout    time.Duration

	DatabaseURL string

	CheckinMinDuration           time.Duration
	CheckinMaxMembers            int
	CheckinMaxAbsences           int
	CheckinMaxSessionsPerChannel int

	GroupDefaultMaxSize int
	GroupLifetime       time.Duration
}

var ErrMissingToken = errors.New("DISCORD_BOT_TOKEN is required")

var defaults = map[string]any{
	"APP_BIND_ADDR":                    ":8080",
	"APP_SHUTDOWN_TIMEOUT":             "15s",
	"APP_METRICS_NAMESPACE":            "cpo",
	"APP_ALLOW_ANY_ORIGIN":             "false",
	"LOG_LEVEL":                        "info",
	"LOG_FORMAT":                       "text",
	"DISCORD_BOT_TOKEN":                "",
	"DISCORD_GUILD_ID":                 "",
	"BOT_DEVELOPER_ID":                 "",
	"DISCORD_CALL_TIMEOUT":             "10s",
	"DATABASE_URL":                     "",
	"CHECKIN_MIN_DURATION":             "20s",
	"CHECKIN_MAX_MEMBERS":              "10",
	"CHECKIN_MAX_ABSENCES":             "3",
	"CHECKIN_MAX_SESSIONS_PER_CHANNEL": "5",
	"GROUP_DEFAULT_MAX_SIZE":           "10",
	"GROUP_LIFETIME":                   "12h",
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an optional config file (yaml, toml, json or
// .env). Environment variables take precedence over the file.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		BindAddr:         str(v, "APP_BIND_ADDR"),
		MetricsNamespace: str(v, "APP_METRICS_NAMESPACE"),
		LogLevel:         str(v, "LOG_LEVEL"),
		LogFormat:        str(v, "LOG_FORMAT"),
		DiscordToken:     str(v, "DISCORD_BOT_TOKEN"),
		DiscordGuildID:   str(v, "DISCORD_GUILD_ID"),
		DeveloperID:      str(v, "BOT_DEVELOPER_ID"),
		DatabaseURL:      str(v, "DATABASE_URL"),
	}
	var err error
	if cfg.ShutdownTimeout, err = durationFrom(v, "APP_SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFrom(v, "APP_ALLOW_ANY_ORIGIN"); err != nil {
		return Config{}, err
	}
	if cfg.CallTimeout, err = durationFrom(v, "DISCORD_CALL_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.CheckinMinDuration, err = durationFrom(v, "CHECKIN_MIN_DURATION"); err != nil {
		return Config{}, err
	}
	if cfg.CheckinMaxMembers, err = intFrom(v, "CHECKIN_MAX_MEMBERS"); err != nil {
		return Config{}, err
	}
	if cfg.CheckinMaxAbsences, err = intFrom(v, "CHECKIN_MAX_ABSENCES"); err != nil {
		return Config{}, err
	}
	if cfg.CheckinMaxSessionsPerChannel, err = intFrom(v, "CHECKIN_MAX_SESSIONS_PER_CHANNEL"); err != nil {
		return Config{}, err
	}
	if cfg.GroupDefaultMaxSize, err = intFrom(v, "GROUP_DEFAULT_MAX_SIZE"); err != nil {
		return Config{}, err
	}
	if cfg.GroupLifetime, err = durationFrom(v, "GROUP_LIFETIME"); err != nil {
		return Config{}, err
	}

	if cfg.CheckinMinDuration < time.Second {
		return Config{}, fmt.Errorf("CHECKIN_MIN_DURATION must be at least 1s")
	}
	if cfg.CheckinMaxMembers <= 0 {
		return Config{}, fmt.Errorf("CHECKIN_MAX_MEMBERS must be positive")
	}
	if cfg.CheckinMaxAbsences <= 0 {
		return Config{}, fmt.Errorf("CHECKIN_MAX_ABSENCES must be positive")
	}
	if cfg.CheckinMaxSessionsPerChannel <= 0 {
		return Config{}, fmt.Errorf("CHECKIN_MAX_SESSIONS_PER_CHANNEL must be positive")
	}
	if cfg.GroupDefaultMaxSize <= 0 {
		return Config{}, fmt.Errorf("GROUP_DEFAULT_MAX_SIZE must be positive")
	}
	if cfg.GroupLifetime <= 0 {
		return Config{}, fmt.Errorf("GROUP_LIFETIME must be positive")
	}
	if cfg.CallTimeout <= 0 {
		return Config{}, fmt.Errorf("DISCORD_CALL_TIMEOUT must be positive")
	}

	return cfg, nil
}

// RequireDiscord reports whether the settings needed to reach the chat
// gateway are present.
func (c Config) RequireDiscord() error {
	if c.DiscordToken == "" {
		return ErrMissingToken
	}
	return nil
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func durationFrom(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(str(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFrom(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(str(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFrom(v *viper.Viper, key string) (bool, error) {
	switch strings.ToLower(str(v, key)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
