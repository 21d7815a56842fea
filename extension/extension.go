// Package extension provides the Forge extension adapter for Patron.
//
// It implements the forge.Extension interface to integrate Patron
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.patron" or "patron" keys.
package extension

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	patron "github.com/xraph/patron"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/store/memory"
	"github.com/xraph/patron/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "patron"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Patronage allocation, earnings, and payout engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Patron as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *patron.Ledger
	store      store.Store
	patronOpts []patron.Option
	useGrove   bool
}

// New creates a new Patron Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *patron.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the patron engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build patron options from resolved config.
	opts := e.buildPatronOpts()

	eng := patron.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*patron.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("patron: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("patron: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildPatronOpts constructs patron.Option values from the resolved config.
func (e *Extension) buildPatronOpts() []patron.Option {
	opts := make([]patron.Option, 0, len(e.patronOpts)+4)

	if e.config.PlatformFeeBps > 0 {
		opts = append(opts, patron.WithPlatformFee(e.config.PlatformFeeBps))
	}
	if e.config.MinimumPayoutCents > 0 {
		opts = append(opts, patron.WithMinimumPayout(types.USD(e.config.MinimumPayoutCents)))
	}
	if e.config.PayoutMaxAttempts > 0 {
		opts = append(opts, patron.WithPayoutRetry(e.config.PayoutMaxAttempts, 500*time.Millisecond, 30*time.Second))
	}
	if e.config.TransferTimeout > 0 {
		opts = append(opts, patron.WithTransferTimeout(e.config.TransferTimeout))
	}
	if e.config.MonitorInterval > 0 {
		opts = append(opts, patron.WithMonitorConfig(
			e.config.MonitorInterval,
			types.USD(e.config.MonitorWarnGapCents),
			types.USD(e.config.MonitorCriticalGapCents),
		))
	}

	// Append any pass-through patron options.
	opts = append(opts, e.patronOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("patron: configuration is required but not found in config files; " +
				"ensure 'extensions.patron' or 'patron' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("patron: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("platform_fee_bps", e.config.PlatformFeeBps),
		forge.F("minimum_payout_cents", e.config.MinimumPayoutCents),
		forge.F("payout_max_attempts", e.config.PayoutMaxAttempts),
		forge.F("transfer_timeout", e.config.TransferTimeout),
		forge.F("monitor_interval", e.config.MonitorInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.patron" first (namespaced pattern).
	if cm.IsSet("extensions.patron") {
		if err := cm.Bind("extensions.patron", &cfg); err == nil {
			e.Logger().Debug("patron: loaded config from file",
				forge.F("key", "extensions.patron"),
			)
			return cfg, true
		}
		e.Logger().Warn("patron: failed to bind extensions.patron config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "patron" key.
	if cm.IsSet("patron") {
		if err := cm.Bind("patron", &cfg); err == nil {
			e.Logger().Debug("patron: loaded config from file",
				forge.F("key", "patron"),
			)
			return cfg, true
		}
		e.Logger().Warn("patron: failed to bind patron config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.PlatformFeeBps == 0 {
		cfg.PlatformFeeBps = defaults.PlatformFeeBps
	}
	if cfg.MinimumPayoutCents == 0 {
		cfg.MinimumPayoutCents = defaults.MinimumPayoutCents
	}
	if cfg.PayoutMaxAttempts == 0 {
		cfg.PayoutMaxAttempts = defaults.PayoutMaxAttempts
	}
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = defaults.TransferTimeout
	}
	if cfg.MonitorInterval == 0 {
		cfg.MonitorInterval = defaults.MonitorInterval
	}
	if cfg.MonitorWarnGapCents == 0 {
		cfg.MonitorWarnGapCents = defaults.MonitorWarnGapCents
	}
	if cfg.MonitorCriticalGapCents == 0 {
		cfg.MonitorCriticalGapCents = defaults.MonitorCriticalGapCents
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Numeric/duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PlatformFeeBps == 0 && programmaticConfig.PlatformFeeBps != 0 {
		yamlConfig.PlatformFeeBps = programmaticConfig.PlatformFeeBps
	}
	if yamlConfig.MinimumPayoutCents == 0 && programmaticConfig.MinimumPayoutCents != 0 {
		yamlConfig.MinimumPayoutCents = programmaticConfig.MinimumPayoutCents
	}
	if yamlConfig.PayoutMaxAttempts == 0 && programmaticConfig.PayoutMaxAttempts != 0 {
		yamlConfig.PayoutMaxAttempts = programmaticConfig.PayoutMaxAttempts
	}
	if yamlConfig.TransferTimeout == 0 && programmaticConfig.TransferTimeout != 0 {
		yamlConfig.TransferTimeout = programmaticConfig.TransferTimeout
	}
	if yamlConfig.MonitorInterval == 0 && programmaticConfig.MonitorInterval != 0 {
		yamlConfig.MonitorInterval = programmaticConfig.MonitorInterval
	}
	if yamlConfig.MonitorWarnGapCents == 0 && programmaticConfig.MonitorWarnGapCents != 0 {
		yamlConfig.MonitorWarnGapCents = programmaticConfig.MonitorWarnGapCents
	}
	if yamlConfig.MonitorCriticalGapCents == 0 && programmaticConfig.MonitorCriticalGapCents != 0 {
		yamlConfig.MonitorCriticalGapCents = programmaticConfig.MonitorCriticalGapCents
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
