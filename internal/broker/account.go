package broker

import (
	"sync"

	"simbroker/internal/models"
)

// accountDelta is one atomic change to the shared ledger. Every mutation the
// matching workers make goes through Ledger.apply with one of these, so the
// ledger only ever sees whole, consistent steps.
type accountDelta struct {
	commission     float64
	frozenMargin   float64
	frozenPremium  float64
	floatProfit    float64
	positionProfit float64
	closeProfit    float64
	margin         float64
	premium        float64
	marketValue    float64
}

// Ledger holds the single account shared by all instrument workers. It is the
// only cross-worker mutable state; the mutex covers nothing but the field
// updates themselves.
type Ledger struct {
	mu   sync.Mutex
	acct models.Account
}

func NewLedger(accountID, currency string, initBalance float64) *Ledger {
	return &Ledger{
		acct: models.Account{
			AccountID:     accountID,
			Currency:      currency,
			PreBalance:    initBalance,
			StaticBalance: initBalance,
			Balance:       initBalance,
			Available:     initBalance,
		},
	}
}

// apply folds the delta into the account and reports whether available funds
// remain non-negative. Balance and available are maintained incrementally:
//
//	balance   += position profit + close profit - commission + premium + market value
//	available += position profit + close profit - commission + premium
//	             - frozen margin - margin - frozen premium
func (l *Ledger) apply(d accountDelta) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := &l.acct
	a.Balance += d.positionProfit + d.closeProfit - d.commission + d.premium + d.marketValue
	a.Available += d.positionProfit + d.closeProfit - d.commission + d.premium -
		d.frozenMargin - d.margin - d.frozenPremium
	a.FloatProfit += d.floatProfit
	a.PositionProfit += d.positionProfit
	a.CloseProfit += d.closeProfit
	a.FrozenMargin += d.frozenMargin
	a.FrozenPremium += d.frozenPremium
	a.Margin += d.margin
	a.Premium += d.premium
	a.MarketValue += d.marketValue
	a.Commission += d.commission
	if a.Balance != 0 {
		a.RiskRatio = a.Margin / a.Balance
	} else {
		a.RiskRatio = 0
	}
	return a.Available >= 0
}

// Snapshot returns a copy of the current account state.
func (l *Ledger) Snapshot() models.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acct
}

// settleDay resets the per-day counters for the next trading day. The closing
// balance becomes the new pre-day balance.
func (l *Ledger) settleDay() {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := &l.acct
	a.PreBalance = a.Balance
	a.StaticBalance = a.Balance
	a.PositionProfit = 0
	a.CloseProfit = 0
	a.Commission = 0
	a.Premium = 0
}
