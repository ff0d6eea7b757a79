// Package app provides the application context and dependency management
// for the eolsync CLI: configuration, logging, the lazily built catalog
// client, and the root command that runs one reconciliation pass.
package app

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/port"
	"github.com/agentstation/eolsync/pkg/reconciler"
)

// App represents the eolsync application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	flags  Flags
	logger *zerolog.Logger
	// fixedLogger is set when the logger was injected and must not be
	// rebuilt from flags.
	fixedLogger bool

	// Catalog client (lazy-initialized, singleton)
	mu      sync.Mutex
	catalog reconciler.Catalog
}

// New creates a new App instance with the given version information.
// Configuration is loaded from .env files, the environment, and the
// optional config file; it is validated only when a pass runs.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	app.config = config

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.logger == nil {
		logger := NewLogger(app.config)
		app.logger = &logger
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// Catalog returns the catalog client, creating it on first use from the
// validated configuration.
func (a *App) Catalog() (reconciler.Catalog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.catalog != nil {
		return a.catalog, nil
	}

	if err := a.config.Validate(); err != nil {
		return nil, err
	}

	client, err := port.New(a.config.PortConfig(),
		port.WithHTTPTimeout(a.config.HTTPTimeout),
		port.WithUserAgent(constants.UserAgentPrefix+a.version),
	)
	if err != nil {
		return nil, err
	}

	a.catalog = client
	return client, nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if config == nil {
			return errors.NewConfigError("app", "config cannot be nil", nil)
		}
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		if logger != nil {
			a.logger = logger
			a.fixedLogger = true
		}
		return nil
	}
}

// WithCatalog sets a custom catalog client (useful for testing).
func WithCatalog(catalog reconciler.Catalog) Option {
	return func(a *App) error {
		a.catalog = catalog
		return nil
	}
}
