package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/florianilch/tradestation-auth/internal/auth"
	"github.com/florianilch/tradestation-auth/internal/client"
	"github.com/florianilch/tradestation-auth/internal/tokensource"
	"github.com/florianilch/tradestation-auth/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TelemetryExporter selects where log records are exported to.
type TelemetryExporter string

const (
	TelemetryExporterNone     TelemetryExporter = "none"
	TelemetryExporterStdout   TelemetryExporter = "stdout"
	TelemetryExporterOTLPGRPC TelemetryExporter = "otlp-grpc"
	TelemetryExporterOTLPHTTP TelemetryExporter = "otlp-http"
)

// TokenStorageType represents the different storage types supported for stored tokens.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// CallbackMode represents how the redirect URL is obtained during authorization.
type CallbackMode string

const (
	CallbackModePrompt CallbackMode = "prompt"
	CallbackModeListen CallbackMode = "listen"
)

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigTelemetryExporter = TelemetryExporterNone
	DefaultConfigServerHost        = "127.0.0.1"
	DefaultConfigServerPort        = 4000
	DefaultConfigShutdownTimeout   = 5 * time.Second
	DefaultConfigAuthStorage       = TokenStorageTypeFile
	DefaultConfigAuthFile          = tokenstore.DefaultFile
	DefaultConfigAuthCallback      = CallbackModePrompt
	DefaultConfigAPITransport      = client.TransportSync
	DefaultConfigAPIMaxConcurrency = 4
	DefaultConfigAPITimeout        = tokensource.DefaultTimeout
	DefaultConfigAPIPaperTrade     = true
)

// TelemetryConfig holds log export configuration.
type TelemetryConfig struct {
	Exporter TelemetryExporter `json:"exporter" validate:"oneof=none stdout otlp-grpc otlp-http"`
}

// ServerConfig holds local proxy server configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// APIConfig describes the client handed to application code.
type APIConfig struct {
	// PaperTrade selects the simulated environment. Nil means the default (true).
	PaperTrade     *bool                `json:"paper_trade"`
	Transport      client.TransportKind `json:"transport" validate:"oneof=sync async"`
	MaxConcurrency int                  `json:"max_concurrency" validate:"gte=0"`
	Timeout        time.Duration        `json:"timeout" validate:"gte=0"`
	// RefreshMargin refreshes tokens this long before they expire.
	RefreshMargin time.Duration `json:"refresh_margin" validate:"gte=0"`
	// BaseURL overrides the live/paper API root.
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`
}

// EndpointConfig holds the OAuth2 endpoints of the authorization server.
type EndpointConfig struct {
	AuthURL  string `json:"auth_url" validate:"required,url"`
	TokenURL string `json:"token_url" validate:"required,url"`
}

// AuthConfig represents the configuration for token storage and acquisition.
type AuthConfig struct {
	// Storage configuration - where the persisted token lives
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier

	// Authorization flow settings
	Callback      CallbackMode   `json:"callback" validate:"oneof=prompt listen"`
	PromptTimeout time.Duration  `json:"prompt_timeout" validate:"gte=0"` // Zero waits forever
	Audience      string         `json:"audience" validate:"required"`
	Endpoint      EndpointConfig `json:"endpoint"`
}

// NewTokenStore creates a TokenStore from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(a.EnvKey)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(tokenstore.DefaultKeyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// OAuth2Endpoint returns the configured endpoints in oauth2 form.
func (a *AuthConfig) OAuth2Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   a.Endpoint.AuthURL,
		TokenURL:  a.Endpoint.TokenURL,
		AuthStyle: tokensource.Endpoint.AuthStyle,
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	// Credentials are checked when a client is created; commands such as
	// logout work without them.
	Credentials auth.Credentials `json:"credentials" validate:"-"`
	API         APIConfig        `json:"api"`
	Auth        AuthConfig       `json:"auth"`
	Server      ServerConfig     `json:"server"`
	Shutdown    ShutdownConfig   `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// PaperTrade resolves the paper trade setting.
func (c *Config) PaperTrade() bool {
	if c.API.PaperTrade == nil {
		return DefaultConfigAPIPaperTrade
	}
	return *c.API.PaperTrade
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.API.Transport == "" {
		c.API.Transport = DefaultConfigAPITransport
	}
	if c.API.MaxConcurrency == 0 {
		c.API.MaxConcurrency = DefaultConfigAPIMaxConcurrency
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Callback == "" {
		c.Auth.Callback = DefaultConfigAuthCallback
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = tokensource.Audience
	}
	if c.Auth.Endpoint.AuthURL == "" {
		c.Auth.Endpoint.AuthURL = tokensource.Endpoint.AuthURL
	}
	if c.Auth.Endpoint.TokenURL == "" {
		c.Auth.Endpoint.TokenURL = tokensource.Endpoint.TokenURL
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			c.Auth.File = DefaultConfigAuthFile
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
