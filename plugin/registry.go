package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onAllocationUpserted []OnAllocationUpserted
	onAllocationRemoved  []OnAllocationRemoved
	onEarningsRecomputed []OnEarningsRecomputed
	onCycleAdvanced      []OnCycleAdvanced
	onPeriodLocked       []OnPeriodLocked
	onSweepCompleted     []OnSweepCompleted
	onPayoutRequested    []OnPayoutRequested
	onPayoutCompleted    []OnPayoutCompleted
	onPayoutFailed       []OnPayoutFailed
	onEscrowMismatch     []OnEscrowMismatch
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAllocationUpserted); ok {
		r.onAllocationUpserted = append(r.onAllocationUpserted, v)
	}
	if v, ok := p.(OnAllocationRemoved); ok {
		r.onAllocationRemoved = append(r.onAllocationRemoved, v)
	}
	if v, ok := p.(OnEarningsRecomputed); ok {
		r.onEarningsRecomputed = append(r.onEarningsRecomputed, v)
	}
	if v, ok := p.(OnCycleAdvanced); ok {
		r.onCycleAdvanced = append(r.onCycleAdvanced, v)
	}
	if v, ok := p.(OnPeriodLocked); ok {
		r.onPeriodLocked = append(r.onPeriodLocked, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}
	if v, ok := p.(OnPayoutRequested); ok {
		r.onPayoutRequested = append(r.onPayoutRequested, v)
	}
	if v, ok := p.(OnPayoutCompleted); ok {
		r.onPayoutCompleted = append(r.onPayoutCompleted, v)
	}
	if v, ok := p.(OnPayoutFailed); ok {
		r.onPayoutFailed = append(r.onPayoutFailed, v)
	}
	if v, ok := p.(OnEscrowMismatch); ok {
		r.onEscrowMismatch = append(r.onEscrowMismatch, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnAllocationUpserted)(nil)).Elem(), "OnAllocationUpserted")
	checkInterface(reflect.TypeOf((*OnAllocationRemoved)(nil)).Elem(), "OnAllocationRemoved")
	checkInterface(reflect.TypeOf((*OnEarningsRecomputed)(nil)).Elem(), "OnEarningsRecomputed")
	checkInterface(reflect.TypeOf((*OnCycleAdvanced)(nil)).Elem(), "OnCycleAdvanced")
	checkInterface(reflect.TypeOf((*OnPeriodLocked)(nil)).Elem(), "OnPeriodLocked")
	checkInterface(reflect.TypeOf((*OnSweepCompleted)(nil)).Elem(), "OnSweepCompleted")
	checkInterface(reflect.TypeOf((*OnPayoutRequested)(nil)).Elem(), "OnPayoutRequested")
	checkInterface(reflect.TypeOf((*OnPayoutCompleted)(nil)).Elem(), "OnPayoutCompleted")
	checkInterface(reflect.TypeOf((*OnPayoutFailed)(nil)).Elem(), "OnPayoutFailed")
	checkInterface(reflect.TypeOf((*OnEscrowMismatch)(nil)).Elem(), "OnEscrowMismatch")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, ledger)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAllocationUpserted emits an allocation upserted event.
func (r *Registry) EmitAllocationUpserted(ctx context.Context, alloc interface{}) {
	r.mu.RLock()
	plugins := r.onAllocationUpserted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAllocationUpserted(ctx, alloc)
		}); err != nil {
			r.logger.Warn("plugin OnAllocationUpserted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAllocationRemoved emits an allocation removed event.
func (r *Registry) EmitAllocationRemoved(ctx context.Context, alloc interface{}) {
	r.mu.RLock()
	plugins := r.onAllocationRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAllocationRemoved(ctx, alloc)
		}); err != nil {
			r.logger.Warn("plugin OnAllocationRemoved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEarningsRecomputed emits an earnings recomputed event.
func (r *Registry) EmitEarningsRecomputed(ctx context.Context, subscriberID, period string, fundedCents int64) {
	r.mu.RLock()
	plugins := r.onEarningsRecomputed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEarningsRecomputed(ctx, subscriberID, period, fundedCents)
		}); err != nil {
			r.logger.Warn("plugin OnEarningsRecomputed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCycleAdvanced emits a cycle phase advanced event.
func (r *Registry) EmitCycleAdvanced(ctx context.Context, period, phase string) {
	r.mu.RLock()
	plugins := r.onCycleAdvanced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCycleAdvanced(ctx, period, phase)
		}); err != nil {
			r.logger.Warn("plugin OnCycleAdvanced failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPeriodLocked emits a period locked event.
func (r *Registry) EmitPeriodLocked(ctx context.Context, period string, recipients int) {
	r.mu.RLock()
	plugins := r.onPeriodLocked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPeriodLocked(ctx, period, recipients)
		}); err != nil {
			r.logger.Warn("plugin OnPeriodLocked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, period string, subscribers int, sweptCents int64) {
	r.mu.RLock()
	plugins := r.onSweepCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSweepCompleted(ctx, period, subscribers, sweptCents)
		}); err != nil {
			r.logger.Warn("plugin OnSweepCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPayoutRequested emits a payout requested event.
func (r *Registry) EmitPayoutRequested(ctx context.Context, p interface{}) {
	r.mu.RLock()
	plugins := r.onPayoutRequested
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPayoutRequested(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnPayoutRequested failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitPayoutCompleted emits a payout completed event.
func (r *Registry) EmitPayoutCompleted(ctx context.Context, p interface{}) {
	r.mu.RLock()
	plugins := r.onPayoutCompleted
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPayoutCompleted(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnPayoutCompleted failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitPayoutFailed emits a payout failed event.
func (r *Registry) EmitPayoutFailed(ctx context.Context, p interface{}, terminal bool, cause error) {
	r.mu.RLock()
	plugins := r.onPayoutFailed
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPayoutFailed(ctx, p, terminal, cause)
		}); err != nil {
			r.logger.Warn("plugin OnPayoutFailed failed",
				"plugin", pl.Name(),
				"error", err,
			)
		}
	}
}

// EmitEscrowMismatch emits an escrow mismatch event.
func (r *Registry) EmitEscrowMismatch(ctx context.Context, obligationsCents, escrowCents int64, critical bool) {
	r.mu.RLock()
	plugins := r.onEscrowMismatch
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEscrowMismatch(ctx, obligationsCents, escrowCents, critical)
		}); err != nil {
			r.logger.Warn("plugin OnEscrowMismatch failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
