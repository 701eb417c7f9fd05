package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/tradestation-auth/internal/app"
)

// envPrefix is stripped from environment variables during config loading (e.g., TSAUTH_CREDENTIALS__CLIENT_KEY → credentials.client_key)
const envPrefix = "TSAUTH_"

// configCheck is a command specific requirement on the loaded config.
type configCheck func(*app.Config) error

// loadConfig loads application configuration from various sources with precedence:
// config file → environment variables → CLI flags → defaults
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string, checks ...configCheck) (*app.Config, error) {
	k := koanf.New(".")

	// 1. Load from config file if provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// 2. Load from environment variables
	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	// 3. Load from CLI flags if provided
	if cmd != nil {
		flagValues := extractAndTransformFlags(cmd)
		if err := k.Load(confmap.Provider(flagValues, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	for _, check := range checks {
		if err := check(config); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	return config, nil
}

// requireCredentials fails with the keys to set when the client credentials
// are incomplete. Commands that talk to the authorization server need them.
func requireCredentials(cfg *app.Config) error {
	fields := []struct {
		key   string
		value string
	}{
		{"client_key", cfg.Credentials.ClientKey},
		{"client_secret", cfg.Credentials.ClientSecret},
		{"redirect_uri", cfg.Credentials.RedirectURI},
	}

	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, fmt.Sprintf("credentials.%s (%sCREDENTIALS__%s)", f.key, envPrefix, strings.ToUpper(f.key)))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	return cfg.Credentials.Validate()
}

// defaultConfigFile is looked up in the user config dir when --config is not given.
const defaultConfigFile = "tsauth/config.toml"

// resolveConfigPath returns the explicit path, or the default config file if
// it exists, or "" to load from environment and flags only.
func resolveConfigPath(explicit string, userConfigDir func() (string, error)) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	dir, err := userConfigDir()
	if err != nil {
		// No home directory, e.g. in containers
		return "", nil
	}

	candidate := filepath.Join(dir, filepath.FromSlash(defaultConfigFile))
	if _, err := os.Stat(candidate); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("checking default config file: %w", err)
	}
	return candidate, nil
}

// extractAndTransformFlags transforms CLI flag names to match config structure.
// Includes parent flags. Examples: --credentials--client-key → credentials.client_key, --log-level → log_level
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		// config names the file itself and is not a config key
		if name == "config" || !cmd.IsSet(name) {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}
