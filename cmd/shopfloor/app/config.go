package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/shopfloor/pkg/constants"
)

// Config holds the application configuration loaded from config files,
// environment variables and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Dashboard connection
	Origin       string
	Token        string
	APIKey       string
	APIKeyHeader string
	OperatorID   string
	OperatorName string
	Locale       string

	// Sync tuning
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
	FetchTimeout      time.Duration
	StatusInterval    time.Duration
	NotificationTTL   time.Duration

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (SHOPFLOOR_ORIGIN, SHOPFLOOR_TOKEN, ...)
// 3. .env files
// 4. Config file ($SHOPFLOOR_CONFIG, else ~/.shopfloor.yaml or ./.shopfloor.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix("shopfloor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("origin", constants.DefaultOrigin)
	v.SetDefault("locale", "en")
	v.SetDefault("api_key_header", constants.DefaultAPIKeyHeader)
	v.SetDefault("reconnect_attempts", constants.MaxReconnectAttempts)
	v.SetDefault("reconnect_delay", constants.ReconnectBaseDelay)
	v.SetDefault("ping_interval", constants.PingInterval)
	v.SetDefault("fetch_timeout", constants.FetchTimeout)
	v.SetDefault("status_interval", constants.SystemStatusInterval)
	v.SetDefault("notification_ttl", constants.NotificationTTL)

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.DefaultConfigName)
	}

	// A missing config file is not an error.
	_ = v.ReadInConfig()

	return &Config{
		Verbose:    v.GetBool("verbose"),
		Quiet:      v.GetBool("quiet"),
		NoColor:    v.GetBool("no_color"),
		Format:     v.GetString("format"),
		ConfigFile: v.ConfigFileUsed(),

		Origin:       v.GetString("origin"),
		Token:        v.GetString("token"),
		APIKey:       v.GetString("api_key"),
		APIKeyHeader: v.GetString("api_key_header"),
		OperatorID:   v.GetString("operator_id"),
		OperatorName: v.GetString("operator_name"),
		Locale:       v.GetString("locale"),

		ReconnectAttempts: v.GetInt("reconnect_attempts"),
		ReconnectDelay:    v.GetDuration("reconnect_delay"),
		PingInterval:      v.GetDuration("ping_interval"),
		FetchTimeout:      v.GetDuration("fetch_timeout"),
		StatusInterval:    v.GetDuration("status_interval"),
		NotificationTTL:   v.GetDuration("notification_ttl"),

		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}, nil
}

// UpdateFromFlags applies parsed persistent flags. Flags take precedence over
// the config file and the environment.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads .env then .env.local. Variables already set win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
