package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/patron/allocation"
	"github.com/xraph/patron/balance"
	"github.com/xraph/patron/cycle"
	"github.com/xraph/patron/earnings"
	"github.com/xraph/patron/id"
	"github.com/xraph/patron/payout"
	"github.com/xraph/patron/period"
	"github.com/xraph/patron/types"
)

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:patron_balances"`

	ID                string            `grove:"id,pk"              bson:"_id"`
	SubscriberID      string            `grove:"subscriber_id"      bson:"subscriber_id"`
	Period            string            `grove:"period"             bson:"period"`
	Currency          string            `grove:"currency"           bson:"currency"`
	BudgetCents       int64             `grove:"budget_cents"       bson:"budget_cents"`
	BudgetCurrency    string            `grove:"budget_currency"    bson:"budget_currency"`
	AllocatedCents    int64             `grove:"allocated_cents"    bson:"allocated_cents"`
	AllocatedCurrency string            `grove:"allocated_currency" bson:"allocated_currency"`
	SweptCents        int64             `grove:"swept_cents"        bson:"swept_cents"`
	SweptCurrency     string            `grove:"swept_currency"     bson:"swept_currency"`
	Retired           bool              `grove:"retired"            bson:"retired"`
	RetiredAt         *time.Time        `grove:"retired_at"         bson:"retired_at,omitempty"`
	AppID             string            `grove:"app_id"             bson:"app_id"`
	Metadata          map[string]string `grove:"metadata"           bson:"metadata,omitempty"`
	CreatedAt         time.Time         `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"         bson:"updated_at"`
}

func toBalanceModel(b *balance.SubscriberBalance) *balanceModel {
	return &balanceModel{
		ID:                b.ID.String(),
		SubscriberID:      b.SubscriberID,
		Period:            b.Period.String(),
		Currency:          b.Currency,
		BudgetCents:       b.TotalBudget.Amount,
		BudgetCurrency:    b.TotalBudget.Currency,
		AllocatedCents:    b.Allocated.Amount,
		AllocatedCurrency: b.Allocated.Currency,
		SweptCents:        b.Swept.Amount,
		SweptCurrency:     b.Swept.Currency,
		Retired:           b.Retired,
		RetiredAt:         b.RetiredAt,
		AppID:             b.AppID,
		Metadata:          b.Metadata,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func fromBalanceModel(m *balanceModel) (*balance.SubscriberBalance, error) {
	balID, err := id.ParseBalanceID(m.ID)
	if err != nil {
		return nil, err
	}
	p, err := period.Parse(m.Period)
	if err != nil {
		return nil, err
	}

	return &balance.SubscriberBalance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           balID,
		SubscriberID: m.SubscriberID,
		Period:       p,
		Currency:     m.Currency,
		TotalBudget:  types.Money{Amount: m.BudgetCents, Currency: m.BudgetCurrency},
		Allocated:    types.Money{Amount: m.AllocatedCents, Currency: m.AllocatedCurrency},
		Swept:        types.Money{Amount: m.SweptCents, Currency: m.SweptCurrency},
		Retired:      m.Retired,
		RetiredAt:    m.RetiredAt,
		AppID:        m.AppID,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Allocation models ====================

type allocationModel struct {
	grove.BaseModel `grove:"table:patron_allocations"`

	ID             string            `grove:"id,pk"           bson:"_id"`
	SubscriberID   string            `grove:"subscriber_id"   bson:"subscriber_id"`
	RecipientID    string            `grove:"recipient_id"    bson:"recipient_id"`
	ResourceID     string            `grove:"resource_id"     bson:"resource_id"`
	Period         string            `grove:"period"          bson:"period"`
	AmountCents    int64             `grove:"amount_cents"    bson:"amount_cents"`
	AmountCurrency string            `grove:"amount_currency" bson:"amount_currency"`
	Status         string            `grove:"status"          bson:"status"`
	AppID          string            `grove:"app_id"          bson:"app_id"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

func toAllocationModel(a *allocation.Allocation) *allocationModel {
	return &allocationModel{
		ID:             a.ID.String(),
		SubscriberID:   a.SubscriberID,
		RecipientID:    a.RecipientID,
		ResourceID:     a.ResourceID,
		Period:         a.Period.String(),
		AmountCents:    a.Amount.Amount,
		AmountCurrency: a.Amount.Currency,
		Status:         string(a.Status),
		AppID:          a.AppID,
		Metadata:       a.Metadata,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func fromAllocationModel(m *allocationModel) (*allocation.Allocation, error) {
	allocID, err := id.ParseAllocationID(m.ID)
	if err != nil {
		return nil, err
	}
	p, err := period.Parse(m.Period)
	if err != nil {
		return nil, err
	}

	return &allocation.Allocation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           allocID,
		SubscriberID: m.SubscriberID,
		RecipientID:  m.RecipientID,
		ResourceID:   m.ResourceID,
		Period:       p,
		Amount:       types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		Status:       allocation.Status(m.Status),
		AppID:        m.AppID,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Earning models ====================

type earningModel struct {
	grove.BaseModel `grove:"table:patron_earnings"`

	ID                string            `grove:"id,pk"              bson:"_id"`
	RecipientID       string            `grove:"recipient_id"       bson:"recipient_id"`
	SubscriberID      string            `grove:"subscriber_id"      bson:"subscriber_id"`
	AllocationID      string            `grove:"allocation_id"      bson:"allocation_id"`
	Period            string            `grove:"period"             bson:"period"`
	AllocatedCents    int64             `grove:"allocated_cents"    bson:"allocated_cents"`
	AllocatedCurrency string            `grove:"allocated_currency" bson:"allocated_currency"`
	AmountCents       int64             `grove:"amount_cents"       bson:"amount_cents"`
	AmountCurrency    string            `grove:"amount_currency"    bson:"amount_currency"`
	Ratio             float64           `grove:"ratio"              bson:"ratio"`
	Status            string            `grove:"status"             bson:"status"`
	PayoutID          string            `grove:"payout_id"          bson:"payout_id"`
	LockedAt          *time.Time        `grove:"locked_at"          bson:"locked_at,omitempty"`
	PaidOutAt         *time.Time        `grove:"paid_out_at"        bson:"paid_out_at,omitempty"`
	AppID             string            `grove:"app_id"             bson:"app_id"`
	Metadata          map[string]string `grove:"metadata"           bson:"metadata,omitempty"`
	CreatedAt         time.Time         `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"         bson:"updated_at"`
}

func toEarningModel(r *earnings.Record) *earningModel {
	payoutID := ""
	if !r.PayoutID.IsNil() {
		payoutID = r.PayoutID.String()
	}

	return &earningModel{
		ID:                r.ID.String(),
		RecipientID:       r.RecipientID,
		SubscriberID:      r.SubscriberID,
		AllocationID:      r.AllocationID.String(),
		Period:            r.Period.String(),
		AllocatedCents:    r.Allocated.Amount,
		AllocatedCurrency: r.Allocated.Currency,
		AmountCents:       r.Amount.Amount,
		AmountCurrency:    r.Amount.Currency,
		Ratio:             r.Ratio,
		Status:            string(r.Status),
		PayoutID:          payoutID,
		LockedAt:          r.LockedAt,
		PaidOutAt:         r.PaidOutAt,
		AppID:             r.AppID,
		Metadata:          r.Metadata,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func fromEarningModel(m *earningModel) (*earnings.Record, error) {
	earnID, err := id.ParseEarningID(m.ID)
	if err != nil {
		return nil, err
	}
	allocID, err := id.ParseAllocationID(m.AllocationID)
	if err != nil {
		return nil, err
	}
	p, err := period.Parse(m.Period)
	if err != nil {
		return nil, err
	}

	payoutID := id.Nil
	if m.PayoutID != "" {
		payoutID, err = id.ParsePayoutID(m.PayoutID)
		if err != nil {
			return nil, err
		}
	}

	return &earnings.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           earnID,
		RecipientID:  m.RecipientID,
		SubscriberID: m.SubscriberID,
		AllocationID: allocID,
		Period:       p,
		Allocated:    types.Money{Amount: m.AllocatedCents, Currency: m.AllocatedCurrency},
		Amount:       types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		Ratio:        m.Ratio,
		Status:       earnings.Status(m.Status),
		PayoutID:     payoutID,
		LockedAt:     m.LockedAt,
		PaidOutAt:    m.PaidOutAt,
		AppID:        m.AppID,
		Metadata:     m.Metadata,
	}, nil
}

// ==================== Cycle models ====================

type cycleModel struct {
	grove.BaseModel `grove:"table:patron_cycles"`

	ID               string     `grove:"id,pk"             bson:"_id"`
	Period           string     `grove:"period"            bson:"period"`
	Phase            string     `grove:"phase"             bson:"phase"`
	LockedRecipients int        `grove:"locked_recipients" bson:"locked_recipients"`
	SweptSubscribers int        `grove:"swept_subscribers" bson:"swept_subscribers"`
	SweptCents       int64      `grove:"swept_cents"       bson:"swept_cents"`
	SweptCurrency    string     `grove:"swept_currency"    bson:"swept_currency"`
	PayoutsRequested int        `grove:"payouts_requested" bson:"payouts_requested"`
	StartedAt        *time.Time `grove:"started_at"        bson:"started_at,omitempty"`
	ClosedAt         *time.Time `grove:"closed_at"         bson:"closed_at,omitempty"`
	LastError        string     `grove:"last_error"        bson:"last_error"`
	AppID            string     `grove:"app_id"            bson:"app_id"`
	CreatedAt        time.Time  `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"        bson:"updated_at"`
}

func toCycleModel(st *cycle.State) *cycleModel {
	return &cycleModel{
		ID:               st.ID.String(),
		Period:           st.Period.String(),
		Phase:            string(st.Phase),
		LockedRecipients: st.LockedRecipients,
		SweptSubscribers: st.SweptSubscribers,
		SweptCents:       st.SweptTotal.Amount,
		SweptCurrency:    st.SweptTotal.Currency,
		PayoutsRequested: st.PayoutsRequested,
		StartedAt:        st.StartedAt,
		ClosedAt:         st.ClosedAt,
		LastError:        st.LastError,
		AppID:            st.AppID,
		CreatedAt:        st.CreatedAt,
		UpdatedAt:        st.UpdatedAt,
	}
}

func fromCycleModel(m *cycleModel) (*cycle.State, error) {
	cycID, err := id.ParseCycleID(m.ID)
	if err != nil {
		return nil, err
	}
	p, err := period.Parse(m.Period)
	if err != nil {
		return nil, err
	}

	return &cycle.State{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               cycID,
		Period:           p,
		Phase:            cycle.Phase(m.Phase),
		LockedRecipients: m.LockedRecipients,
		SweptSubscribers: m.SweptSubscribers,
		SweptTotal:       types.Money{Amount: m.SweptCents, Currency: m.SweptCurrency},
		PayoutsRequested: m.PayoutsRequested,
		StartedAt:        m.StartedAt,
		ClosedAt:         m.ClosedAt,
		LastError:        m.LastError,
		AppID:            m.AppID,
	}, nil
}

// ==================== Payout models ====================

type payoutModel struct {
	grove.BaseModel `grove:"table:patron_payouts"`

	ID             string            `grove:"id,pk"           bson:"_id"`
	RecipientID    string            `grove:"recipient_id"    bson:"recipient_id"`
	Period         string            `grove:"period"          bson:"period"`
	AmountCents    int64             `grove:"amount_cents"    bson:"amount_cents"`
	AmountCurrency string            `grove:"amount_currency" bson:"amount_currency"`
	FeeCents       int64             `grove:"fee_cents"       bson:"fee_cents"`
	FeeCurrency    string            `grove:"fee_currency"    bson:"fee_currency"`
	NetCents       int64             `grove:"net_cents"       bson:"net_cents"`
	NetCurrency    string            `grove:"net_currency"    bson:"net_currency"`
	Status         string            `grove:"status"          bson:"status"`
	FailureKind    string            `grove:"failure_kind"    bson:"failure_kind"`
	Attempts       int               `grove:"attempts"        bson:"attempts"`
	LastError      string            `grove:"last_error"      bson:"last_error"`
	Reference      string            `grove:"reference"       bson:"reference"`
	CompletedAt    *time.Time        `grove:"completed_at"    bson:"completed_at,omitempty"`
	AppID          string            `grove:"app_id"          bson:"app_id"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

func toPayoutModel(p *payout.Payout) *payoutModel {
	return &payoutModel{
		ID:             p.ID.String(),
		RecipientID:    p.RecipientID,
		Period:         p.Period.String(),
		AmountCents:    p.Amount.Amount,
		AmountCurrency: p.Amount.Currency,
		FeeCents:       p.Fee.Amount,
		FeeCurrency:    p.Fee.Currency,
		NetCents:       p.Net.Amount,
		NetCurrency:    p.Net.Currency,
		Status:         string(p.Status),
		FailureKind:    string(p.FailureKind),
		Attempts:       p.Attempts,
		LastError:      p.LastError,
		Reference:      p.Reference,
		CompletedAt:    p.CompletedAt,
		AppID:          p.AppID,
		Metadata:       p.Metadata,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func fromPayoutModel(m *payoutModel) (*payout.Payout, error) {
	payoutID, err := id.ParsePayoutID(m.ID)
	if err != nil {
		return nil, err
	}
	p, err := period.Parse(m.Period)
	if err != nil {
		return nil, err
	}

	return &payout.Payout{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          payoutID,
		RecipientID: m.RecipientID,
		Period:      p,
		Amount:      types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		Fee:         types.Money{Amount: m.FeeCents, Currency: m.FeeCurrency},
		Net:         types.Money{Amount: m.NetCents, Currency: m.NetCurrency},
		Status:      payout.Status(m.Status),
		FailureKind: payout.FailureKind(m.FailureKind),
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		Reference:   m.Reference,
		CompletedAt: m.CompletedAt,
		AppID:       m.AppID,
		Metadata:    m.Metadata,
	}, nil
}
