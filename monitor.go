package patron

import (
	"context"
	"time"
)

// EscrowReport is one observation of obligations versus held escrow funds.
type EscrowReport struct {
	ObligationsCents int64
	EscrowCents      int64
	GapCents         int64
	Warning          bool
	Critical         bool
}

// CheckEscrow compares outstanding obligations (all available, unpaid
// earnings) against the funds the provider reports in escrow. Purely
// observational: it raises alerts through logs and plugin events and never
// corrects records.
func (l *Ledger) CheckEscrow(ctx context.Context) (*EscrowReport, error) {
	if l.transfers == nil {
		return nil, ErrNoTransferClient
	}

	obligations, err := l.store.SumOutstandingEarnings(ctx)
	if err != nil {
		return nil, err
	}
	held, err := l.transfers.EscrowBalance(ctx)
	if err != nil {
		return nil, err
	}

	report := &EscrowReport{
		ObligationsCents: obligations.Amount,
		EscrowCents:      held.Amount,
		GapCents:         obligations.Amount - held.Amount,
	}
	report.Warning = report.GapCents > l.monitorWarnGap.Amount
	report.Critical = report.GapCents > l.monitorCriticalGap.Amount

	switch {
	case report.Critical:
		l.logger.Error("escrow shortfall critical",
			"obligations_cents", report.ObligationsCents,
			"escrow_cents", report.EscrowCents,
			"gap_cents", report.GapCents,
		)
	case report.Warning:
		l.logger.Warn("escrow shortfall",
			"obligations_cents", report.ObligationsCents,
			"escrow_cents", report.EscrowCents,
			"gap_cents", report.GapCents,
		)
	default:
		l.logger.Debug("escrow check ok",
			"obligations_cents", report.ObligationsCents,
			"escrow_cents", report.EscrowCents,
		)
	}

	if report.Warning || report.Critical {
		l.plugins.EmitEscrowMismatch(ctx, report.ObligationsCents, report.EscrowCents, report.Critical)
	}

	return report, nil
}

// escrowMonitorWorker runs CheckEscrow on a fixed interval until Stop.
func (l *Ledger) escrowMonitorWorker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			if _, err := l.CheckEscrow(ctx); err != nil {
				l.logger.Error("escrow check failed", "error", err)
			}
		}
	}
}
