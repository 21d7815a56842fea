package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Patron store (SQLite).
var Migrations = migrate.NewGroup("patron")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_patron_balances",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_balances (
    id                 TEXT PRIMARY KEY,
    subscriber_id      TEXT NOT NULL DEFAULT '',
    period             TEXT NOT NULL DEFAULT '',
    currency           TEXT NOT NULL DEFAULT '',
    budget_cents       INTEGER NOT NULL DEFAULT 0,
    budget_currency    TEXT NOT NULL DEFAULT '',
    allocated_cents    INTEGER NOT NULL DEFAULT 0,
    allocated_currency TEXT NOT NULL DEFAULT '',
    swept_cents        INTEGER NOT NULL DEFAULT 0,
    swept_currency     TEXT NOT NULL DEFAULT '',
    retired            INTEGER NOT NULL DEFAULT 0,
    retired_at         TIMESTAMP,
    app_id             TEXT NOT NULL DEFAULT '',
    metadata           TEXT NOT NULL DEFAULT '{}',
    created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_patron_balances_sub_period ON patron_balances (subscriber_id, period);
CREATE INDEX IF NOT EXISTS idx_patron_balances_period ON patron_balances (period, retired);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_patron_allocations",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_allocations (
    id              TEXT PRIMARY KEY,
    subscriber_id   TEXT NOT NULL DEFAULT '',
    recipient_id    TEXT NOT NULL DEFAULT '',
    resource_id     TEXT NOT NULL DEFAULT '',
    period          TEXT NOT NULL DEFAULT '',
    amount_cents    INTEGER NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'active',
    app_id          TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_patron_allocs_key ON patron_allocations (subscriber_id, recipient_id, resource_id, period);
CREATE INDEX IF NOT EXISTS idx_patron_allocs_subscriber ON patron_allocations (subscriber_id, period, status);
CREATE INDEX IF NOT EXISTS idx_patron_allocs_recipient ON patron_allocations (recipient_id, period, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_allocations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_patron_earnings",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_earnings (
    id                 TEXT PRIMARY KEY,
    recipient_id       TEXT NOT NULL DEFAULT '',
    subscriber_id      TEXT NOT NULL DEFAULT '',
    allocation_id      TEXT NOT NULL DEFAULT '',
    period             TEXT NOT NULL DEFAULT '',
    allocated_cents    INTEGER NOT NULL DEFAULT 0,
    allocated_currency TEXT NOT NULL DEFAULT '',
    amount_cents       INTEGER NOT NULL DEFAULT 0,
    amount_currency    TEXT NOT NULL DEFAULT '',
    ratio              REAL NOT NULL DEFAULT 0,
    status             TEXT NOT NULL DEFAULT 'pending',
    payout_id          TEXT NOT NULL DEFAULT '',
    locked_at          TIMESTAMP,
    paid_out_at        TIMESTAMP,
    app_id             TEXT NOT NULL DEFAULT '',
    metadata           TEXT NOT NULL DEFAULT '{}',
    created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_patron_earnings_key ON patron_earnings (recipient_id, period, allocation_id);
CREATE INDEX IF NOT EXISTS idx_patron_earnings_recipient ON patron_earnings (recipient_id, period, status);
CREATE INDEX IF NOT EXISTS idx_patron_earnings_status ON patron_earnings (period, status);
CREATE INDEX IF NOT EXISTS idx_patron_earnings_allocation ON patron_earnings (allocation_id, period);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_earnings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_patron_cycles",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_cycles (
    id                TEXT PRIMARY KEY,
    period            TEXT NOT NULL DEFAULT '',
    phase             TEXT NOT NULL DEFAULT 'open',
    locked_recipients INTEGER NOT NULL DEFAULT 0,
    swept_subscribers INTEGER NOT NULL DEFAULT 0,
    swept_cents       INTEGER NOT NULL DEFAULT 0,
    swept_currency    TEXT NOT NULL DEFAULT '',
    payouts_requested INTEGER NOT NULL DEFAULT 0,
    started_at        TIMESTAMP,
    closed_at         TIMESTAMP,
    last_error        TEXT NOT NULL DEFAULT '',
    app_id            TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_patron_cycles_period ON patron_cycles (period);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_cycles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_patron_payouts",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS patron_payouts (
    id              TEXT PRIMARY KEY,
    recipient_id    TEXT NOT NULL DEFAULT '',
    period          TEXT NOT NULL DEFAULT '',
    amount_cents    INTEGER NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    fee_cents       INTEGER NOT NULL DEFAULT 0,
    fee_currency    TEXT NOT NULL DEFAULT '',
    net_cents       INTEGER NOT NULL DEFAULT 0,
    net_currency    TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'pending',
    failure_kind    TEXT NOT NULL DEFAULT '',
    attempts        INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT NOT NULL DEFAULT '',
    reference       TEXT NOT NULL DEFAULT '',
    completed_at    TIMESTAMP,
    app_id          TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_patron_payouts_recipient_period ON patron_payouts (recipient_id, period);
CREATE INDEX IF NOT EXISTS idx_patron_payouts_status ON patron_payouts (status, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS patron_payouts`)
				return err
			},
		},
	)
}
