package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storefront-wallet/internal/wallet"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedReader struct {
	w       wallet.Wallet
	journal []wallet.Transaction
	err     error
}

func (f fixedReader) GetWallet(context.Context, string) (wallet.Wallet, error) { return f.w, f.err }
func (f fixedReader) Journal(context.Context, string) ([]wallet.Transaction, error) {
	return f.journal, f.err
}

func seeded(t *testing.T, clock func() time.Time) (*wallet.MemoryStore, *wallet.Service) {
	t.Helper()
	store := wallet.NewMemoryStore(wallet.DefaultRates())
	svc := wallet.NewService(store, wallet.WithClock(clock))
	ctx := context.Background()
	reqs := []wallet.MutationRequest{
		{UserID: "u1", Kind: wallet.KindLoyaltyCoins, Amount: d("100"), Source: wallet.SourceOrderReward, ReferenceID: "o1"},
		{UserID: "u1", Kind: wallet.KindAffiliateEarnings, Amount: d("12.50"), Source: wallet.SourceAffiliateCommission, ReferenceID: "o1"},
		{UserID: "u1", Kind: wallet.KindRefundCredits, Amount: d("5.00"), Source: wallet.SourceOrderRefund, ReferenceID: "r1"},
	}
	for _, r := range reqs {
		if _, err := svc.Credit(ctx, r); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	if _, err := svc.Redeem(ctx, "u1", wallet.KindLoyaltyCoins, d("40"), "cart-1", ""); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	return store, svc
}

func TestVerify_ConsistentAfterMutations(t *testing.T) {
	store, _ := seeded(t, func() time.Time { return time.Now().UTC() })

	r, err := NewService(store, nil).Verify(context.Background(), "u1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !r.Consistent {
		t.Fatalf("expected consistent report, issues: %+v", r.Issues)
	}
	line, ok := r.Kind(wallet.KindLoyaltyCoins)
	if !ok || !line.Replayed.Equal(d("60")) || line.Entries != 2 {
		t.Fatalf("unexpected loyalty line: %+v", line)
	}
	if !r.ExpectedTotal.Equal(d("11.00")) {
		t.Fatalf("expected spendable total 11.00, got %s", r.ExpectedTotal)
	}
}

func TestVerify_ConsistentWhenClockRunsBackward(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	store, _ := seeded(t, func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return base.Add(-time.Duration(calls) * time.Minute)
	})
	ctx := context.Background()

	w, err := store.GetWallet(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	journal, err := store.Journal(ctx, "u1")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	// Read back the way the database orders the journal.
	byTime := append([]wallet.Transaction(nil), journal...)
	sort.SliceStable(byTime, func(i, j int) bool { return byTime[i].CreatedAt.Before(byTime[j].CreatedAt) })
	for i := range journal {
		if byTime[i].ID != journal[i].ID {
			t.Fatalf("created_at order differs from commit order at %d", i)
		}
	}

	r, err := NewService(fixedReader{w: w, journal: byTime}, nil).Verify(ctx, "u1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !r.Consistent {
		t.Fatalf("expected consistent report, issues: %+v", r.Issues)
	}
}

func TestVerify_UnknownUserIsConsistentZero(t *testing.T) {
	store := wallet.NewMemoryStore(nil)
	r, err := NewService(store, nil).Verify(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !r.Consistent || len(r.Kinds) != len(wallet.Kinds) {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestVerify_DetectsTamperedJournal(t *testing.T) {
	w := wallet.NewWallet("u1")
	w.Balances[wallet.KindLoyaltyCoins] = d("50")
	w.SpendableTotal = d("5.00")
	journal := []wallet.Transaction{
		{ID: "t1", Kind: wallet.KindLoyaltyCoins, Direction: wallet.DirectionCredit, Amount: d("30"), BalanceAfter: d("30")},
		{ID: "t2", Kind: wallet.KindLoyaltyCoins, Direction: wallet.DirectionDebit, Amount: d("40"), BalanceAfter: d("0")},
	}

	r, err := NewService(fixedReader{w: w, journal: journal}, nil).Verify(context.Background(), "u1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if r.Consistent {
		t.Fatalf("expected inconsistency")
	}
	var negative, chain, mismatch bool
	for _, is := range r.Issues {
		switch {
		case is.TransactionID == "t2" && is.Message == "balance went negative at -10":
			negative = true
		case is.TransactionID == "t2":
			chain = true
		case is.TransactionID == "" && is.Kind == wallet.KindLoyaltyCoins:
			mismatch = true
		}
	}
	if !negative || !chain || !mismatch {
		t.Fatalf("missing issues: %+v", r.Issues)
	}
	line, _ := r.Kind(wallet.KindLoyaltyCoins)
	if line.Match || !line.Replayed.Equal(d("-10")) {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestVerify_DetectsStaleSpendableTotal(t *testing.T) {
	w := wallet.NewWallet("u1")
	w.Balances[wallet.KindRefundCredits] = d("3.00")
	w.SpendableTotal = d("1.00")
	journal := []wallet.Transaction{
		{ID: "t1", Kind: wallet.KindRefundCredits, Direction: wallet.DirectionCredit, Amount: d("3.00"), BalanceAfter: d("3.00")},
	}
	r, err := NewService(fixedReader{w: w, journal: journal}, nil).Verify(context.Background(), "u1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if r.Consistent || len(r.Issues) != 1 || !r.ExpectedTotal.Equal(d("3.00")) {
		t.Fatalf("unexpected report: %+v", r)
	}
}

func TestVerify_Errors(t *testing.T) {
	svc := NewService(fixedReader{err: errors.New("boom")}, nil)
	if _, err := svc.Verify(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := svc.Verify(context.Background(), "u1"); err == nil {
		t.Fatalf("expected reader error")
	}
}

func TestActivity_GroupsBySource(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, _ := seeded(t, func() time.Time { return now })
	svc := NewService(store, nil)

	sum, err := svc.Activity(context.Background(), ActivityRequest{
		UserID: "u1",
		Range:  TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(sum.Sources) != 4 {
		t.Fatalf("expected 4 source groups, got %+v", sum.Sources)
	}
	if !sum.Net[wallet.KindLoyaltyCoins].Equal(d("60")) {
		t.Fatalf("expected net 60 loyalty, got %s", sum.Net[wallet.KindLoyaltyCoins])
	}
	for _, s := range sum.Sources {
		if s.Kind == wallet.KindLoyaltyCoins && s.Source == wallet.SourceRedemption {
			if !s.Debits.Equal(d("40")) || !s.Credits.IsZero() || s.Count != 1 {
				t.Fatalf("unexpected redemption totals: %+v", s)
			}
		}
	}

	only, err := svc.Activity(context.Background(), ActivityRequest{
		UserID: "u1",
		Kind:   wallet.KindRefundCredits,
		Range:  TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(only.Sources) != 1 || only.Sources[0].Source != wallet.SourceOrderRefund {
		t.Fatalf("unexpected filtered totals: %+v", only.Sources)
	}

	empty, err := svc.Activity(context.Background(), ActivityRequest{
		UserID: "u1",
		Range:  TimeRange{From: now.Add(time.Hour), To: now.Add(2 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(empty.Sources) != 0 {
		t.Fatalf("expected no activity outside range, got %+v", empty.Sources)
	}
}

func TestActivity_Validation(t *testing.T) {
	svc := NewService(wallet.NewMemoryStore(nil), nil)
	now := time.Now()
	cases := []ActivityRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{UserID: "u1"},
		{UserID: "u1", Range: TimeRange{From: now, To: now}},
		{UserID: "u1", Kind: "gold", Range: TimeRange{From: now, To: now.Add(time.Hour)}},
	}
	for i, c := range cases {
		if _, err := svc.Activity(context.Background(), c); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected invalid request, got %v", i, err)
		}
	}
}
