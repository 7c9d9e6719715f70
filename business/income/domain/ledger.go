package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger keeps the cumulative income total. Structured events overwrite it,
// every other format adds to it. Safe for concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	total      decimal.Decimal
	discipline SourceFormat
	events     uint64
	updatedAt  time.Time
}

// LedgerSnapshot is a consistent read of the ledger.
type LedgerSnapshot struct {
	Total          decimal.Decimal
	LastDiscipline SourceFormat // empty until the first event
	Events         uint64
	UpdatedAt      time.Time
}

// NewLedger returns a ledger at zero.
func NewLedger() *Ledger {
	return &Ledger{total: decimal.Zero}
}

// Apply folds one event into the total and returns the new total.
// A reconnecting worker may legitimately reset the total through a
// structured event; the value is taken as-is.
func (l *Ledger) Apply(e IncomeEvent) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.SourceFormat.IsAuthoritative() {
		total := decimal.Zero
		if e.TotalIncome.Valid {
			total = e.TotalIncome.Decimal
		}
		l.total = total
	} else {
		l.total = l.total.Add(e.Amount)
	}

	l.discipline = e.SourceFormat
	l.events++
	l.updatedAt = time.Now()
	return l.total
}

// Current returns the total.
func (l *Ledger) Current() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Snapshot returns the total together with its bookkeeping.
func (l *Ledger) Snapshot() LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LedgerSnapshot{
		Total:          l.total,
		LastDiscipline: l.discipline,
		Events:         l.events,
		UpdatedAt:      l.updatedAt,
	}
}

// Reset returns the ledger to zero.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total = decimal.Zero
	l.discipline = ""
	l.events = 0
	l.updatedAt = time.Time{}
}
