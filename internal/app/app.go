package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/tradestation-auth/internal/client"
	"github.com/florianilch/tradestation-auth/internal/proxy"
	"github.com/florianilch/tradestation-auth/internal/tokensource"
)

// App orchestrates the lifecycle of the local API proxy.
type App struct {
	cfg   *Config
	proxy *proxy.Proxy
}

// New creates a new App serving requests through the given client's credentials.
func New(cfg *Config, apiClient *client.Client) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if apiClient == nil {
		return nil, fmt.Errorf("missing API client")
	}

	proxyServer, err := proxy.New(apiClient.TokenSource(), proxy.WithBaseURL(apiClient.BaseURL()))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:   cfg,
		proxy: proxyServer,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	slog.InfoContext(gCtx, "starting proxy server", "address", address, "paper_trade", a.cfg.PaperTrade())
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// NewPrompter creates the Prompter selected by auth.callback.
func NewPrompter(cfg *Config, open tokensource.OpenFunc) (tokensource.Prompter, error) {
	switch cfg.Auth.Callback {
	case CallbackModePrompt:
		return &tokensource.StdinPrompter{Open: open}, nil
	case CallbackModeListen:
		srv, err := tokensource.NewCallbackServer(cfg.Credentials.RedirectURI)
		if err != nil {
			return nil, err
		}
		srv.Open = open
		return srv, nil
	default:
		return nil, fmt.Errorf("unsupported callback mode: %s", cfg.Auth.Callback)
	}
}

// NewFactoryFromConfig wires a Factory from application configuration.
// No I/O is performed until a client is created.
func NewFactoryFromConfig(cfg *Config, prompter tokensource.Prompter) (*Factory, error) {
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	return NewFactory(cfg.Credentials, store,
		WithEndpoint(cfg.Auth.OAuth2Endpoint()),
		WithPromptTimeout(cfg.Auth.PromptTimeout),
		WithTokenOptions(
			tokensource.WithAudience(cfg.Auth.Audience),
			tokensource.WithTimeout(cfg.API.Timeout),
			tokensource.WithRefreshMargin(cfg.API.RefreshMargin),
			tokensource.WithPrompter(prompter),
		),
		WithClientOptions(
			client.WithPaperTrade(cfg.PaperTrade()),
			client.WithBaseURL(cfg.API.BaseURL),
			client.WithTransport(cfg.API.Transport, cfg.API.MaxConcurrency),
			client.WithTimeout(cfg.API.Timeout),
		),
	)
}
