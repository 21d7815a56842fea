package patron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/patron/period"
	"github.com/xraph/patron/plugin"
	"github.com/xraph/patron/store"
	"github.com/xraph/patron/transfer"
	"github.com/xraph/patron/types"
)

// Ledger is the allocation, earnings, and payout engine.
type Ledger struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	transfers transfer.Client

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Per-(subscriber, period) write serialization
	subLocks keyedMutex

	// Per-period cycle singleflight
	cycleMu       sync.Mutex
	runningCycles map[period.Period]bool

	// Per-(recipient, period) payout in-flight guard
	payoutMu        sync.Mutex
	inflightPayouts map[string]bool

	// Configuration
	appID                string
	platformFeeBps       int64
	minimumPayout        types.Money
	payoutMaxAttempts    int
	payoutInitialBackoff time.Duration
	payoutMaxBackoff     time.Duration
	transferTimeout      time.Duration
	monitorInterval      time.Duration
	monitorWarnGap       types.Money
	monitorCriticalGap   types.Money
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:                s,
		plugins:              plugin.NewRegistry(),
		logger:               slog.Default(),
		stopChan:             make(chan struct{}),
		runningCycles:        make(map[period.Period]bool),
		inflightPayouts:      make(map[string]bool),
		platformFeeBps:       1000,
		minimumPayout:        types.USD(2500),
		payoutMaxAttempts:    3,
		payoutInitialBackoff: 500 * time.Millisecond,
		payoutMaxBackoff:     30 * time.Second,
		transferTimeout:      30 * time.Second,
		monitorInterval:      time.Minute,
		monitorWarnGap:       types.USD(100),
		monitorCriticalGap:   types.USD(10000),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithAppID scopes every record the engine writes to one application.
func WithAppID(appID string) Option {
	return func(l *Ledger) {
		l.appID = appID
	}
}

// WithTransferClient sets the external payment boundary. Without a client,
// payout processing and escrow monitoring are disabled.
func WithTransferClient(c transfer.Client) Option {
	return func(l *Ledger) {
		l.transfers = c
	}
}

// WithPlatformFee sets the platform fee in basis points (1000 = 10%).
func WithPlatformFee(bps int64) Option {
	return func(l *Ledger) {
		l.platformFeeBps = bps
	}
}

// WithMinimumPayout sets the minimum available balance required before a
// payout is issued.
func WithMinimumPayout(m types.Money) Option {
	return func(l *Ledger) {
		l.minimumPayout = m
	}
}

// WithPayoutRetry configures the retry policy for retryable transfer
// failures.
func WithPayoutRetry(maxAttempts int, initialBackoff, maxBackoff time.Duration) Option {
	return func(l *Ledger) {
		l.payoutMaxAttempts = maxAttempts
		l.payoutInitialBackoff = initialBackoff
		l.payoutMaxBackoff = maxBackoff
	}
}

// WithTransferTimeout bounds each external transfer call. A timeout is an
// unknown outcome; the payout is retried under the same idempotency key.
func WithTransferTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		l.transferTimeout = d
	}
}

// WithMonitorConfig configures the escrow balance monitor.
func WithMonitorConfig(interval time.Duration, warnGap, criticalGap types.Money) Option {
	return func(l *Ledger) {
		l.monitorInterval = interval
		l.monitorWarnGap = warnGap
		l.monitorCriticalGap = criticalGap
	}
}

// Start migrates the store, initializes plugins, re-drives unsettled
// payouts, and begins the escrow monitor.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	l.plugins.EmitInit(ctx, l)

	if l.transfers != nil {
		l.recoverUnsettledPayouts(ctx)

		l.wg.Add(1)
		go l.escrowMonitorWorker(ctx)
	}

	l.logger.Info("patron started",
		"platform_fee_bps", l.platformFeeBps,
		"minimum_payout", l.minimumPayout.String(),
		"monitor_interval", l.monitorInterval,
	)

	return nil
}

// Stop shuts down the Ledger.
func (l *Ledger) Stop() error {
	close(l.stopChan)
	l.wg.Wait()

	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

// Store exposes the underlying store, mainly for extensions and tooling.
func (l *Ledger) Store() store.Store { return l.store }

// Plugins exposes the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// ──────────────────────────────────────────────────
// Keyed locking
// ──────────────────────────────────────────────────

// keyedMutex hands out one mutex per key so writes for the same
// (subscriber, period) serialize while unrelated subscribers proceed in
// parallel. Mutexes are never evicted; the key space is bounded by active
// subscribers per period.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	if m, ok := k.locks[key]; ok {
		return m
	}

	m := &sync.Mutex{}
	k.locks[key] = m
	return m
}

func subscriberKey(subscriberID string, p period.Period) string {
	return subscriberID + "|" + p.String()
}

func recipientKey(recipientID string, p period.Period) string {
	return recipientID + "|" + p.String()
}
