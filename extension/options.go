package extension

import (
	"time"

	patron "github.com/xraph/patron"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/transfer"
)

// Option configures the Patron Forge extension.
type Option func(*Extension)

// WithStore sets the store for the patron engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPatronOption passes a patron.Option through to the underlying engine.
func WithPatronOption(opt patron.Option) Option {
	return func(e *Extension) {
		e.patronOpts = append(e.patronOpts, opt)
	}
}

// WithPlugin registers a patron plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.patronOpts = append(e.patronOpts, patron.WithPlugin(p))
	}
}

// WithTransferClient sets the external transfer provider.
func WithTransferClient(c transfer.Client) Option {
	return func(e *Extension) {
		e.patronOpts = append(e.patronOpts, patron.WithTransferClient(c))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithPlatformFeeBps sets the platform fee in basis points.
func WithPlatformFeeBps(bps int64) Option {
	return func(e *Extension) { e.config.PlatformFeeBps = bps }
}

// WithMinimumPayoutCents sets the minimum payout threshold in cents.
func WithMinimumPayoutCents(cents int64) Option {
	return func(e *Extension) { e.config.MinimumPayoutCents = cents }
}

// WithPayoutMaxAttempts bounds transfer retries for retryable failures.
func WithPayoutMaxAttempts(n int) Option {
	return func(e *Extension) { e.config.PayoutMaxAttempts = n }
}

// WithTransferTimeout bounds each external transfer call.
func WithTransferTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.TransferTimeout = d }
}

// WithMonitorInterval sets how often the escrow monitor runs.
func WithMonitorInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.MonitorInterval = d }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
