package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront-wallet/internal/wallet"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls in [From, To).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// KindReport compares the stored balance of one kind with the journal replay.
type KindReport struct {
	Kind     wallet.Kind     `json:"kind"`
	Stored   decimal.Decimal `json:"stored"`
	Replayed decimal.Decimal `json:"replayed"`
	Entries  int             `json:"entries"`
	Match    bool            `json:"match"`
}

// Issue is one inconsistency found while replaying the journal.
type Issue struct {
	Kind          wallet.Kind `json:"kind,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Message       string      `json:"message"`
}

// Report is the result of Verify. Consistent is true only when Issues is empty.
type Report struct {
	UserID        string          `json:"user_id"`
	Kinds         []KindReport    `json:"kinds"`
	StoredTotal   decimal.Decimal `json:"stored_spendable_total"`
	ExpectedTotal decimal.Decimal `json:"expected_spendable_total"`
	Issues        []Issue         `json:"issues,omitempty"`
	Consistent    bool            `json:"consistent"`
	CheckedAt     time.Time       `json:"checked_at"`
}

// Kind returns the per-kind line of the report.
func (r Report) Kind(k wallet.Kind) (KindReport, bool) {
	for _, l := range r.Kinds {
		if l.Kind == k {
			return l, true
		}
	}
	return KindReport{}, false
}

// ActivityRequest asks for journal totals of one user over a time range.
type ActivityRequest struct {
	UserID string      `json:"user_id"`
	Range  TimeRange   `json:"range"`
	Kind   wallet.Kind `json:"kind,omitempty"`
}

// SourceTotals are the credit and debit sums for one (kind, source) pair.
type SourceTotals struct {
	Kind    wallet.Kind     `json:"kind"`
	Source  string          `json:"source"`
	Credits decimal.Decimal `json:"credits"`
	Debits  decimal.Decimal `json:"debits"`
	Count   int             `json:"count"`
}

type ActivitySummary struct {
	UserID  string         `json:"user_id"`
	Range   TimeRange      `json:"range"`
	Sources []SourceTotals `json:"sources"`

	// Net is the signed change per kind within the range.
	Net map[wallet.Kind]decimal.Decimal `json:"net"`
}
