package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"storefront-wallet/internal/wallet"
)

var ErrInvalidRequest = errors.New("reconcile: invalid request")

// snapshotAttempts bounds how often Verify re-reads when the wallet moves
// between the wallet read and the journal read.
const snapshotAttempts = 3

// JournalReader is the read side both wallet stores provide.
type JournalReader interface {
	GetWallet(ctx context.Context, userID string) (wallet.Wallet, error)
	Journal(ctx context.Context, userID string) ([]wallet.Transaction, error)
}

type Service struct {
	reader JournalReader
	rates  wallet.Rates
	clock  func() time.Time
}

func NewService(reader JournalReader, rates wallet.Rates) *Service {
	if rates == nil {
		rates = wallet.DefaultRates()
	}
	return &Service{reader: reader, rates: rates, clock: func() time.Time { return time.Now().UTC() }}
}

// Verify replays the user's journal and checks it against the stored wallet.
func (s *Service) Verify(ctx context.Context, userID string) (Report, error) {
	if userID == "" {
		return Report{}, ErrInvalidRequest
	}
	if s.reader == nil {
		return Report{}, errors.New("reconcile: reader not configured")
	}

	w, journal, err := s.snapshot(ctx, userID)
	if err != nil {
		return Report{}, err
	}

	out := Report{
		UserID:        userID,
		StoredTotal:   w.SpendableTotal,
		ExpectedTotal: s.rates.SpendableTotal(w),
		CheckedAt:     s.clock(),
	}

	running := make(map[wallet.Kind]decimal.Decimal, len(wallet.Kinds))
	entries := make(map[wallet.Kind]int, len(wallet.Kinds))
	for _, tx := range journal {
		if !tx.Kind.Valid() {
			out.Issues = append(out.Issues, Issue{TransactionID: tx.ID, Message: fmt.Sprintf("unknown kind %q", tx.Kind)})
			continue
		}
		if !tx.Amount.IsPositive() {
			out.Issues = append(out.Issues, Issue{Kind: tx.Kind, TransactionID: tx.ID, Message: "non-positive amount"})
		}
		bal := running[tx.Kind].Add(tx.Signed())
		running[tx.Kind] = bal
		entries[tx.Kind]++
		if bal.IsNegative() {
			out.Issues = append(out.Issues, Issue{Kind: tx.Kind, TransactionID: tx.ID, Message: "balance went negative at " + bal.String()})
		}
		if !tx.BalanceAfter.Equal(bal) {
			out.Issues = append(out.Issues, Issue{
				Kind:          tx.Kind,
				TransactionID: tx.ID,
				Message:       fmt.Sprintf("balance_after %s, replay %s", tx.BalanceAfter, bal),
			})
		}
	}

	for _, k := range wallet.Kinds {
		stored := w.Balances.Get(k)
		replayed := running[k]
		line := KindReport{Kind: k, Stored: stored, Replayed: replayed, Entries: entries[k], Match: stored.Equal(replayed)}
		if !line.Match {
			out.Issues = append(out.Issues, Issue{Kind: k, Message: fmt.Sprintf("stored %s, replay %s", stored, replayed)})
		}
		out.Kinds = append(out.Kinds, line)
	}
	if !out.StoredTotal.Equal(out.ExpectedTotal) {
		out.Issues = append(out.Issues, Issue{
			Message: fmt.Sprintf("spendable total %s, expected %s", out.StoredTotal, out.ExpectedTotal),
		})
	}
	out.Consistent = len(out.Issues) == 0
	return out, nil
}

// snapshot reads the wallet and journal until both describe the same state.
func (s *Service) snapshot(ctx context.Context, userID string) (wallet.Wallet, []wallet.Transaction, error) {
	var (
		w       wallet.Wallet
		journal []wallet.Transaction
		err     error
	)
	for i := 0; i < snapshotAttempts; i++ {
		w, err = s.reader.GetWallet(ctx, userID)
		if err != nil {
			return wallet.Wallet{}, nil, err
		}
		journal, err = s.reader.Journal(ctx, userID)
		if err != nil {
			return wallet.Wallet{}, nil, err
		}
		after, err := s.reader.GetWallet(ctx, userID)
		if err != nil {
			return wallet.Wallet{}, nil, err
		}
		if after.LastUpdated.Equal(w.LastUpdated) {
			return w, journal, nil
		}
	}
	return w, journal, nil
}

// Activity sums the user's journal per (kind, source) within the range.
func (s *Service) Activity(ctx context.Context, req ActivityRequest) (ActivitySummary, error) {
	if req.UserID == "" {
		return ActivitySummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return ActivitySummary{}, ErrInvalidRequest
	}
	if req.Kind != "" && !req.Kind.Valid() {
		return ActivitySummary{}, ErrInvalidRequest
	}
	if s.reader == nil {
		return ActivitySummary{}, errors.New("reconcile: reader not configured")
	}

	journal, err := s.reader.Journal(ctx, req.UserID)
	if err != nil {
		return ActivitySummary{}, err
	}

	type key struct {
		kind   wallet.Kind
		source string
	}
	totals := map[key]*SourceTotals{}
	out := ActivitySummary{UserID: req.UserID, Range: req.Range, Net: map[wallet.Kind]decimal.Decimal{}}
	for _, tx := range journal {
		if req.Kind != "" && tx.Kind != req.Kind {
			continue
		}
		if !req.Range.Contains(tx.CreatedAt) {
			continue
		}
		k := key{kind: tx.Kind, source: tx.Source}
		t, ok := totals[k]
		if !ok {
			t = &SourceTotals{Kind: tx.Kind, Source: tx.Source, Credits: decimal.Zero, Debits: decimal.Zero}
			totals[k] = t
		}
		t.Count++
		if tx.Direction == wallet.DirectionDebit {
			t.Debits = t.Debits.Add(tx.Amount)
		} else {
			t.Credits = t.Credits.Add(tx.Amount)
		}
		out.Net[tx.Kind] = out.Net[tx.Kind].Add(tx.Signed())
	}

	out.Sources = make([]SourceTotals, 0, len(totals))
	for _, t := range totals {
		out.Sources = append(out.Sources, *t)
	}
	sort.Slice(out.Sources, func(i, j int) bool {
		if out.Sources[i].Kind != out.Sources[j].Kind {
			return out.Sources[i].Kind < out.Sources[j].Kind
		}
		return out.Sources[i].Source < out.Sources[j].Source
	})
	return out, nil
}
