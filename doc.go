// Package patron provides a composable patronage allocation and payout engine
// for Go applications.
//
// Patron is designed as a library, not a service. Import it directly into your
// Go application and wire it to your subscription billing. It provides:
//
//   - Monthly subscriber budgets with integer-cent accounting
//   - Explicit allocations from subscribers to creators and resources
//   - Funding-ratio scaled earnings (underfunded budgets pay out pro rata)
//   - A resumable monthly close cycle (lock, sweep, dispatch)
//   - Idempotent external payouts with retry and failure classification
//   - Escrow reconciliation monitoring with threshold alerts
//
// # Quick Start
//
// Create a patron instance with your preferred store:
//
//	import (
//	    "github.com/xraph/patron"
//	    "github.com/xraph/patron/store/postgres"
//	)
//
//	// Initialize store
//	store := postgres.New(groveDB)
//
//	// Create engine
//	p := patron.New(store, patron.WithTransferClient(transferClient))
//
//	// Start the engine (runs migrations, begins background workers)
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop()
//
// # Core Concepts
//
// Budgets cap what a subscriber can direct to creators in one period:
//
//	bal, err := p.SetBudget(ctx, "sub_123", period.MustParse("2026-03"), types.USD(1000))
//
// Allocations direct part of a budget at a creator, optionally pinned to a
// specific resource:
//
//	a, err := p.Allocate(ctx, "sub_123", "creator_9", "video_42", types.USD(600), pd)
//
// Earnings are derived from allocations scaled by the subscriber's funding
// ratio. A subscriber who funded half their budget pays every allocation at
// half value, with the rounding residue assigned deterministically:
//
//	pending, err := p.PendingEarnings(ctx, "creator_9", pd)
//
// At month end RunCycle locks the period, sweeps unallocated budget, and
// dispatches payouts for every creator above the minimum threshold:
//
//	st, err := p.RunCycle(ctx, pd)
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest currency
// unit (cents for USD).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	bal_01h2xcejqtf2nbrexx3vqjhp41     // Balance ID
//	alloc_01h2xcejqtf2nbrexx3vqjhp41   // Allocation ID
//	payout_01h455vb4pex5vsknk084sn02q  // Payout ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package patron
