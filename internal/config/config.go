package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix = "PORTFOLIO"

	StoreDriverSQLite    = "sqlite"
	StoreDriverFirestore = "firestore"
	StoreDriverNone      = "none"

	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultAllowedOrigins    = "http://localhost:3000"
	defaultDatabasePath      = "portfolio.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultStoreDriver       = StoreDriverSQLite
	defaultCookieName        = "portfolio_session"
	defaultSessionTTLMinutes = 60
	defaultChatModel         = "gpt-4"
	defaultChatMaxTokens     = 1000
	defaultChatTemperature   = 0.7
	defaultChatHistoryLimit  = 10
	defaultChatTimeout       = 60
	defaultChatOwnerName     = "Clement Ahorsu"
)

// FirebaseConfig identifies the Firebase project used for auth and Firestore.
type FirebaseConfig struct {
	APIKey             string
	AuthDomain         string
	ProjectID          string
	CredentialsFile    string
	IdentityToolkitURL string
	JWKSURL            string
}

// Configured reports whether sign-in can be offered.
func (f FirebaseConfig) Configured() bool {
	return strings.TrimSpace(f.APIKey) != "" && strings.TrimSpace(f.ProjectID) != ""
}

// SessionConfig configures backend session tokens.
type SessionConfig struct {
	SigningSecret string
	CookieName    string
	CookieSecure  bool
	TTL           time.Duration
}

// ChatConfig configures the chat proxy.
type ChatConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float32
	HistoryLimit int
	Timeout      time.Duration
	PersonaFile  string
	OwnerName    string
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	StoreDriver    string
	DatabasePath   string
	Firebase       FirebaseConfig
	Session        SessionConfig
	Chat           ChatConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("store.driver", defaultStoreDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("firebase.api_key", "")
	configViper.SetDefault("firebase.auth_domain", "")
	configViper.SetDefault("firebase.project_id", "")
	configViper.SetDefault("firebase.credentials_file", "")
	configViper.SetDefault("firebase.identity_toolkit_url", "")
	configViper.SetDefault("firebase.jwks_url", "")
	configViper.SetDefault("session.signing_secret", "")
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.cookie_secure", false)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("chat.api_key", "")
	configViper.SetDefault("chat.base_url", "")
	configViper.SetDefault("chat.model", defaultChatModel)
	configViper.SetDefault("chat.max_tokens", defaultChatMaxTokens)
	configViper.SetDefault("chat.temperature", defaultChatTemperature)
	configViper.SetDefault("chat.history_limit", defaultChatHistoryLimit)
	configViper.SetDefault("chat.timeout_seconds", defaultChatTimeout)
	configViper.SetDefault("chat.persona_file", "")
	configViper.SetDefault("chat.owner_name", defaultChatOwnerName)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error unless required.
func LoadEnvFile(path string, required bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if required {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins: splitList(configViper.GetString("http.allowed_origins")),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		StoreDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("store.driver"))),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		Firebase: FirebaseConfig{
			APIKey:             strings.TrimSpace(configViper.GetString("firebase.api_key")),
			AuthDomain:         strings.TrimSpace(configViper.GetString("firebase.auth_domain")),
			ProjectID:          strings.TrimSpace(configViper.GetString("firebase.project_id")),
			CredentialsFile:    strings.TrimSpace(configViper.GetString("firebase.credentials_file")),
			IdentityToolkitURL: strings.TrimSpace(configViper.GetString("firebase.identity_toolkit_url")),
			JWKSURL:            strings.TrimSpace(configViper.GetString("firebase.jwks_url")),
		},
		Session: SessionConfig{
			SigningSecret: configViper.GetString("session.signing_secret"),
			CookieName:    strings.TrimSpace(configViper.GetString("session.cookie_name")),
			CookieSecure:  configViper.GetBool("session.cookie_secure"),
			TTL:           time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		},
		Chat: ChatConfig{
			APIKey:       strings.TrimSpace(configViper.GetString("chat.api_key")),
			BaseURL:      strings.TrimSpace(configViper.GetString("chat.base_url")),
			Model:        strings.TrimSpace(configViper.GetString("chat.model")),
			MaxTokens:    configViper.GetInt("chat.max_tokens"),
			Temperature:  float32(configViper.GetFloat64("chat.temperature")),
			HistoryLimit: configViper.GetInt("chat.history_limit"),
			Timeout:      time.Duration(configViper.GetInt("chat.timeout_seconds")) * time.Second,
			PersonaFile:  strings.TrimSpace(configViper.GetString("chat.persona_file")),
			OwnerName:    strings.TrimSpace(configViper.GetString("chat.owner_name")),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.StoreDriver {
	case StoreDriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required for the sqlite store")
		}
	case StoreDriverFirestore, StoreDriverNone:
	default:
		return fmt.Errorf("store.driver must be one of sqlite, firestore, none; got %q", c.StoreDriver)
	}
	if c.Firebase.Configured() && strings.TrimSpace(c.Session.SigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required when firebase sign-in is configured")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl_minutes must be positive")
	}
	return nil
}

// ChatEnabled reports whether a text-generation key is configured.
func (c AppConfig) ChatEnabled() bool {
	return c.Chat.APIKey != ""
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
