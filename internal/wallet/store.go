package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

// Store is the only writer of wallet balances and roles.
//
// ApplyDelta and SetRole are each one atomic unit: either every effect
// (balance, cached total, journal row) lands or none does. Same-user calls
// serialise around the read-modify-write; different users never block each other.
type Store interface {
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	ApplyDelta(ctx context.Context, d Delta) (ApplyResult, error)
	SetRole(ctx context.Context, userID string, role MarketingRole, now time.Time) (Wallet, bool, error)
}

// Delta is one signed balance change request, already validated by the service.
type Delta struct {
	UserID      string
	Kind        Kind
	Direction   Direction
	Amount      decimal.Decimal
	Source      string
	ReferenceID string
	Description string

	// Dedup makes the store skip the delta when a transaction with the same
	// (user_id, kind, source, reference_id) already exists.
	Dedup bool

	At time.Time
}

// ApplyResult is the outcome of ApplyDelta. When Duplicate is set nothing
// was written and Transaction is the earlier entry.
type ApplyResult struct {
	Wallet      Wallet
	Transaction Transaction
	Duplicate   bool
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		return maxTransactionLimit
	}
	return limit
}

func validateDelta(d Delta) error {
	if d.UserID == "" || d.Source == "" {
		return ErrInvalidArgument
	}
	if !d.Kind.Valid() || !d.Direction.Valid() {
		return ErrInvalidArgument
	}
	if d.Dedup && d.ReferenceID == "" {
		return ErrInvalidArgument
	}
	return validateAmount(d.Kind, d.Amount)
}

func validateAmount(k Kind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{Kind: k, Amount: amount, Reason: "must be greater than zero"}
	}
	if !amount.Equal(amount.Truncate(k.Scale())) {
		return &InvalidAmountError{Kind: k, Amount: amount, Reason: "too many decimal places"}
	}
	return nil
}

// stampAfter returns the write time for a change to the locked wallet cur:
// the clock reading, but never earlier than cur.LastUpdated plus one
// microsecond (the storage resolution). Writes to one wallet therefore carry
// strictly increasing times in commit order.
func stampAfter(cur Wallet, clock time.Time) time.Time {
	at := clock.UTC().Truncate(time.Microsecond)
	if floor := cur.LastUpdated.UTC().Truncate(time.Microsecond).Add(time.Microsecond); !cur.LastUpdated.IsZero() && at.Before(floor) {
		at = floor
	}
	return at
}

// stageDelta computes the post-delta wallet and its journal entry from the
// locked current wallet. It never mutates cur.
func stageDelta(cur Wallet, d Delta, rates Rates) (Wallet, Transaction, error) {
	at := stampAfter(cur, d.At)
	bal := cur.Balances.Get(d.Kind)
	next := cur.clone()

	switch d.Direction {
	case DirectionDebit:
		if !IsSpendable(cur, d.Kind) {
			return Wallet{}, Transaction{}, &RoleRestrictedError{Kind: d.Kind, Role: cur.MarketingRole}
		}
		if bal.LessThan(d.Amount) {
			return Wallet{}, Transaction{}, &InsufficientBalanceError{Kind: d.Kind, Available: bal, Requested: d.Amount}
		}
		next.Balances[d.Kind] = bal.Sub(d.Amount)
	default:
		next.Balances[d.Kind] = bal.Add(d.Amount)
	}

	next.LastUpdated = at
	next.SpendableTotal = rates.SpendableTotal(next)

	tx := Transaction{
		ID:           uuid.NewString(),
		UserID:       d.UserID,
		Kind:         d.Kind,
		Direction:    d.Direction,
		Amount:       d.Amount,
		BalanceAfter: next.Balances.Get(d.Kind),
		Source:       d.Source,
		ReferenceID:  d.ReferenceID,
		Description:  d.Description,
		CreatedAt:    at,
	}
	return next, tx, nil
}

// stageRole applies the role-gate rules to the locked current wallet.
func stageRole(cur Wallet, role MarketingRole, rates Rates, now time.Time) (Wallet, bool, error) {
	changed, err := checkRoleTransition(cur.MarketingRole, role)
	if err != nil || !changed {
		return cur, false, err
	}
	now = stampAfter(cur, now)
	next := cur.clone()
	next.MarketingRole = role
	locked := now
	next.RoleLockedAt = &locked
	next.LastUpdated = now
	next.SpendableTotal = rates.SpendableTotal(next)
	return next, true, nil
}
