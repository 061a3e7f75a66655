package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all settings for the mailgate server. It is built once at
// startup and passed explicitly into each component constructor; there are
// no package-level clients bound to environment secrets.
type Config struct {
	// HTTPAddr is the listen address of the API server (e.g. ":8080").
	HTTPAddr string

	// MetricsAddr is the listen address of the dedicated metrics server.
	MetricsAddr string

	// MetricsEnabled determines whether the metrics server is started.
	MetricsEnabled bool

	// DBPath is the SQLite database path for the account store.
	// Empty means an in-memory database.
	DBPath string

	// GoogleClientID and GoogleClientSecret are the OAuth client
	// credentials used for the Gmail link flow and token refresh.
	GoogleClientID     string
	GoogleClientSecret string

	// OAuthRedirectURL is the registered callback URL of this server
	// (e.g. "https://mail.example.com/api/auth/callback/google").
	OAuthRedirectURL string

	// SetupURL is the front-end page the OAuth callback redirects to,
	// with a success/failure query flag appended.
	SetupURL string

	// Debug enables debug-level logging.
	Debug bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() Config {
	// Missing .env is not an error, env vars alone are fine.
	_ = godotenv.Load()

	return Config{
		HTTPAddr:           getEnvString("HTTP_ADDR", ":8080"),
		MetricsAddr:        getEnvString("METRICS_ADDR", ":9090"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		DBPath:             getEnvString("DB_PATH", "mailgate.db"),
		GoogleClientID:     getEnvString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnvString("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectURL:   getEnvString("OAUTH_REDIRECT_URL", "http://localhost:8080/api/auth/callback/google"),
		SetupURL:           getEnvString("SETUP_URL", "http://localhost:3000/setup"),
		Debug:              getEnvBool("DEBUG", false),
	}
}

// Validate checks that the settings required to talk to Google are present.
func (c Config) Validate() error {
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}
	if c.OAuthRedirectURL == "" {
		return fmt.Errorf("OAUTH_REDIRECT_URL must be set")
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}
