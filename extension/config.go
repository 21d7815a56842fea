package extension

import "time"

// Config holds the Patron extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.patron" or "patron" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// PlatformFeeBps is the platform fee in basis points withheld from
	// each payout (default: 1000, i.e. 10%).
	PlatformFeeBps int64 `json:"platform_fee_bps" mapstructure:"platform_fee_bps" yaml:"platform_fee_bps"`

	// MinimumPayoutCents is the smallest gross earnings balance, in cents,
	// that triggers an external transfer (default: 2500).
	MinimumPayoutCents int64 `json:"minimum_payout_cents" mapstructure:"minimum_payout_cents" yaml:"minimum_payout_cents"`

	// PayoutMaxAttempts bounds transfer retries for retryable failures
	// (default: 3).
	PayoutMaxAttempts int `json:"payout_max_attempts" mapstructure:"payout_max_attempts" yaml:"payout_max_attempts"`

	// TransferTimeout bounds each external transfer call (default: 30s).
	TransferTimeout time.Duration `json:"transfer_timeout" mapstructure:"transfer_timeout" yaml:"transfer_timeout"`

	// MonitorInterval is how often the escrow monitor compares outstanding
	// obligations against the held escrow balance (default: 1m).
	MonitorInterval time.Duration `json:"monitor_interval" mapstructure:"monitor_interval" yaml:"monitor_interval"`

	// MonitorWarnGapCents is the escrow shortfall, in cents, that logs a
	// warning (default: 100).
	MonitorWarnGapCents int64 `json:"monitor_warn_gap_cents" mapstructure:"monitor_warn_gap_cents" yaml:"monitor_warn_gap_cents"`

	// MonitorCriticalGapCents is the escrow shortfall, in cents, treated as
	// critical (default: 10000).
	MonitorCriticalGapCents int64 `json:"monitor_critical_gap_cents" mapstructure:"monitor_critical_gap_cents" yaml:"monitor_critical_gap_cents"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PlatformFeeBps:     1000,
		MinimumPayoutCents: 2500,
		PayoutMaxAttempts:  3,
		TransferTimeout:    30 * time.Second,
		MonitorInterval:    time.Minute,

		MonitorWarnGapCents:     100,
		MonitorCriticalGapCents: 10000,
	}
}
