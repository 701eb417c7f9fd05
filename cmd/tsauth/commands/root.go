package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/browser"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/tradestation-auth/internal/app"
	"github.com/florianilch/tradestation-auth/internal/auth"
	"github.com/florianilch/tradestation-auth/internal/client"
	"github.com/florianilch/tradestation-auth/internal/observability"
	"github.com/florianilch/tradestation-auth/internal/tokenstore"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	// Browser launchers may print to stdout, which is reserved for command output
	browser.Stdout = os.Stderr

	cmd := &cli.Command{
		Name:  "tsauth",
		Usage: "TradeStation OAuth credential manager",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "log and span exporter (none|stdout|otlp-grpc|otlp-http)",
				Value: string(app.DefaultConfigTelemetryExporter),
			},
			&cli.StringFlag{
				Name:  "credentials--client-key",
				Usage: "OAuth2 client key",
			},
			&cli.StringFlag{
				Name:  "credentials--client-secret",
				Usage: "OAuth2 client secret (prefer TSAUTH_CREDENTIALS__CLIENT_SECRET)",
			},
			&cli.StringFlag{
				Name:  "credentials--redirect-uri",
				Usage: "registered redirect URI",
			},
			&cli.StringFlag{
				Name:  "credentials--scope",
				Usage: "space-delimited scopes",
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "token storage (file|env|keyring)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--file",
				Usage: "token file for file storage",
				Value: app.DefaultConfigAuthFile,
			},
			&cli.StringFlag{
				Name:  "auth--env-key",
				Usage: "environment variable holding the token for env storage",
			},
			&cli.StringFlag{
				Name:  "auth--keyring-user",
				Usage: "keyring user for keyring storage",
			},
			&cli.StringFlag{
				Name:  "auth--callback",
				Usage: "how the redirect is captured (prompt|listen)",
				Value: string(app.DefaultConfigAuthCallback),
			},
			&cli.DurationFlag{
				Name:  "auth--prompt-timeout",
				Usage: "maximum wait for the redirect, 0 waits forever",
			},
			&cli.BoolFlag{
				Name:  "api--paper-trade",
				Usage: "use the simulated trading environment",
				Value: app.DefaultConfigAPIPaperTrade,
			},
			&cli.DurationFlag{
				Name:  "api--timeout",
				Usage: "timeout for token and API requests",
				Value: app.DefaultConfigAPITimeout,
			},
			&cli.DurationFlag{
				Name:  "api--refresh-margin",
				Usage: "refresh tokens this long before they expire",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			tokenCommand(),
			getCommand(),
			serveCommand(),
			logoutCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "run the authorization flow and store the token",
		Action: loginAction,
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:   "token",
		Usage:  "print a fresh access token, authorizing first if needed",
		Action: tokenAction,
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a local proxy that authenticates requests to the API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "override the API base URL",
			},
		},
		Action: serveAction,
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET one or more API paths and print each response as a JSON line",
		ArgsUsage: "<path> [path...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "override the API base URL",
			},
			&cli.StringFlag{
				Name:  "api--transport",
				Usage: "client transport (sync|async)",
				Value: string(app.DefaultConfigAPITransport),
			},
			&cli.IntFlag{
				Name:  "api--max-concurrency",
				Usage: "maximum in-flight requests for the async transport",
				Value: app.DefaultConfigAPIMaxConcurrency,
			},
		},
		Action: getAction,
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "delete the stored token",
		Action: logoutAction,
	}
}

// setup loads configuration and installs logging. The returned func flushes
// log exports and must be deferred by the caller.
func setup(ctx context.Context, cmd *cli.Command, checks ...configCheck) (*app.Config, func(), error) {
	configPath, err := resolveConfigPath(cmd.String("config"), os.UserConfigDir)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig(configPath, cmd, os.Environ, checks...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: string(cfg.Telemetry.Exporter),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "flushing logs:", err)
		}
	}, nil
}

func newFactory(cfg *app.Config) (*app.Factory, error) {
	prompter, err := app.NewPrompter(cfg, browser.OpenURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompter: %w", err)
	}
	return app.NewFactoryFromConfig(cfg, prompter)
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, flush, err := setup(ctx, cmd, requireCredentials)
	if err != nil {
		return err
	}
	defer flush()

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	if _, err := factory.Authorize(ctx); err != nil {
		return fmt.Errorf("login failed: %w", explain(err))
	}

	_, _ = fmt.Fprintf(cmd.Root().ErrWriter, "Logged in, token stored (%s storage)\n", cfg.Auth.Storage)
	return nil
}

func tokenAction(ctx context.Context, cmd *cli.Command) error {
	cfg, flush, err := setup(ctx, cmd, requireCredentials)
	if err != nil {
		return err
	}
	defer flush()

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	apiClient, err := factory.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", explain(err))
	}

	accessToken, err := apiClient.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", explain(err))
	}

	if _, err := fmt.Fprintln(cmd.Root().Writer, accessToken); err != nil {
		return err
	}

	// The token is valid, but a rotated refresh token that was not stored is lost on exit
	if err := persistErr(apiClient); err != nil {
		return fmt.Errorf("refreshed token was not stored: %w", err)
	}
	return nil
}

func getAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("at least one API path is required, e.g. /brokerage/accounts")
	}

	cfg, flush, err := setup(ctx, cmd, requireCredentials)
	if err != nil {
		return err
	}
	defer flush()

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	apiClient, err := factory.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", explain(err))
	}

	if err := app.Fetch(ctx, apiClient, paths, cmd.Root().Writer); err != nil {
		return explain(err)
	}

	if err := persistErr(apiClient); err != nil {
		return fmt.Errorf("refreshed token was not stored: %w", err)
	}
	return nil
}

// persistErr reports a failed write-back of a refreshed token.
func persistErr(apiClient *client.Client) error {
	if p, ok := apiClient.TokenSource().(interface{ PersistErr() error }); ok {
		return p.PersistErr()
	}
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, flush, err := setup(ctx, cmd, requireCredentials)
	if err != nil {
		return err
	}
	defer flush()

	factory, err := newFactory(cfg)
	if err != nil {
		return err
	}

	apiClient, err := factory.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", explain(err))
	}

	application, err := app.New(cfg, apiClient)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	cfg, flush, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer flush()

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}

	clearer, ok := store.(tokenstore.Clearer)
	if !ok {
		return &auth.Error{Kind: auth.KindIOError, Detail: fmt.Sprintf("%s storage is read-only", cfg.Auth.Storage)}
	}
	if err := clearer.Clear(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.Root().ErrWriter, "Logged out, stored token removed")
	return nil
}

// explain adds a hint for failures the user has to act on.
func explain(err error) error {
	switch {
	case errors.Is(err, auth.ErrStateMismatch):
		return fmt.Errorf("%w (the redirect does not belong to this login attempt, possible forgery)", err)
	case errors.Is(err, auth.ErrMalformedCallback):
		return fmt.Errorf("%w (paste the full URL from the browser address bar)", err)
	case errors.Is(err, auth.ErrReauthorizationRequired):
		return fmt.Errorf("%w (run tsauth login)", err)
	default:
		return err
	}
}
