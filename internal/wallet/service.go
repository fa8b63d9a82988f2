package wallet

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront-wallet/pkg/logger"

	"github.com/shopspring/decimal"
)

// Service is the ledger API consumed by HTTP handlers, checkout flows and
// event adapters.
//
// Money invariants:
// - Balances change only through Store.ApplyDelta, which journals every change
// - Amounts are positive; direction is separate
// - Debits on role-gated kinds are checked against the role read under the wallet lock
//
// Credits and debits on a kind that is not currently spendable still update
// the raw balance. Once the other marketing role is locked in, such balances
// are stranded permanently; Breakdown flags them so callers can surface it.
type Service struct {
	store Store
	rates Rates

	cache SnapshotCache
	audit AuditRecorder
	obs   Observer

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// SnapshotCache serves relaxed wallet reads for display. It must never feed
// a monetary decision.
//
// Invalidate receives the post-mutation wallet so implementations can refuse
// a later Set of an older snapshot.
type SnapshotCache interface {
	Get(ctx context.Context, userID string) (Wallet, bool, error)
	Set(ctx context.Context, w Wallet) error
	Invalidate(ctx context.Context, w Wallet) error
}

// AuditRecorder records role assignment attempts. Best-effort.
type AuditRecorder interface {
	RecordRoleAssignment(ctx context.Context, e RoleAssignment) error
}

// RoleAssignment describes one AssignRole call for the audit trail.
type RoleAssignment struct {
	UserID    string
	Previous  MarketingRole
	Requested MarketingRole
	Changed   bool
	Err       error
	At        time.Time
}

// Observer receives operation outcomes (metrics).
type Observer interface {
	ObserveMutation(kind Kind, dir Direction, source, outcome string, elapsed time.Duration)
	ObserveRoleAssignment(role MarketingRole, outcome string)
}

type Option func(*Service)

func WithRates(r Rates) Option { return func(s *Service) { s.rates = r } }

func WithClock(clock func() time.Time) Option { return func(s *Service) { s.clock = clock } }

func WithSnapshotCache(c SnapshotCache) Option { return func(s *Service) { s.cache = c } }

func WithAuditRecorder(a AuditRecorder) Option { return func(s *Service) { s.audit = a } }

func WithObserver(o Observer) Option { return func(s *Service) { s.obs = o } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, rates: DefaultRates(), clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MutationRequest is the input to Credit, CreditOnce and Debit.
type MutationRequest struct {
	UserID      string          `json:"user_id"`
	Kind        Kind            `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Outcome labels reported to the Observer.
const (
	OutcomeApplied      = "applied"
	OutcomeDuplicate    = "duplicate"
	OutcomeInvalid      = "invalid"
	OutcomeInsufficient = "insufficient"
	OutcomeRestricted   = "restricted"
	OutcomeLocked       = "locked"
	OutcomeUnavailable  = "unavailable"
)

// Rates returns the conversion table in use.
func (s *Service) Rates() Rates { return s.rates }

// GetWallet returns the authoritative wallet (zero wallet for unknown users).
func (s *Service) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	return s.store.GetWallet(ctx, userID)
}

// GetRole returns the user's marketing role, none by default.
func (s *Service) GetRole(ctx context.Context, userID string) (MarketingRole, error) {
	w, err := s.GetWallet(ctx, userID)
	if err != nil {
		return "", err
	}
	if w.MarketingRole == "" {
		return RoleNone, nil
	}
	return w.MarketingRole, nil
}

// Transactions returns the user's journal, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

// DisplayWallet serves a possibly stale wallet for display, falling back to
// the store on a cache miss or cache failure.
func (s *Service) DisplayWallet(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	if s.cache != nil {
		w, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			logger.From(ctx).Warn("wallet cache read failed", "user_id", userID, "err", err)
		} else if ok {
			return w, nil
		}
	}
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return Wallet{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, w); err != nil {
			logger.From(ctx).Warn("wallet cache write failed", "user_id", userID, "err", err)
		}
	}
	return w, nil
}

// Credit adds amount to the kind's sub-balance.
func (s *Service) Credit(ctx context.Context, req MutationRequest) (Wallet, error) {
	res, err := s.mutate(ctx, req, DirectionCredit, false)
	return res.Wallet, err
}

// CreditOnce credits unless a transaction with the same
// (user, kind, source, reference_id) exists. applied is false for a duplicate.
func (s *Service) CreditOnce(ctx context.Context, req MutationRequest) (w Wallet, applied bool, err error) {
	res, err := s.mutate(ctx, req, DirectionCredit, true)
	if err != nil {
		return Wallet{}, false, err
	}
	return res.Wallet, !res.Duplicate, nil
}

// Debit subtracts amount from the kind's sub-balance. Fails with
// RoleRestrictedError when the kind is not spendable under the current role
// and InsufficientBalanceError when the balance cannot cover amount.
func (s *Service) Debit(ctx context.Context, req MutationRequest) (Wallet, error) {
	res, err := s.mutate(ctx, req, DirectionDebit, false)
	return res.Wallet, err
}

// Redeem is a Debit with source "redemption", used by checkout. The
// reference (cart or order id) is required.
func (s *Service) Redeem(ctx context.Context, userID string, kind Kind, amount decimal.Decimal, referenceID, description string) (Wallet, error) {
	req := MutationRequest{
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Source:      SourceRedemption,
		ReferenceID: strings.TrimSpace(referenceID),
		Description: description,
	}
	if req.ReferenceID == "" {
		s.observe(req, DirectionDebit, OutcomeInvalid, s.clock())
		return Wallet{}, ErrInvalidArgument
	}
	return s.Debit(ctx, req)
}

// SpendableTotal is the base-currency value usable for payment right now.
func (s *Service) SpendableTotal(w Wallet) decimal.Decimal {
	return s.rates.SpendableTotal(w)
}

// Breakdown projects every sub-balance for display.
func (s *Service) Breakdown(w Wallet) Breakdown {
	role := w.MarketingRole
	if role == "" {
		role = RoleNone
	}
	out := Breakdown{
		UserID:         w.UserID,
		MarketingRole:  role,
		Lines:          make([]BreakdownLine, 0, len(Kinds)),
		SpendableTotal: s.SpendableTotal(w),
	}
	for _, k := range Kinds {
		amt := w.Balances.Get(k)
		out.Lines = append(out.Lines, BreakdownLine{
			Kind:      k,
			Amount:    amt,
			Value:     s.rates.Value(k, amt).Round(2),
			Spendable: IsSpendable(w, k),
			Stranded:  IsStranded(w, k) && amt.IsPositive(),
		})
	}
	return out
}

// AssignRole locks in a marketing role. Re-assigning the current role is a
// no-op; any other change after the first assignment is RoleLockedError.
func (s *Service) AssignRole(ctx context.Context, userID string, role MarketingRole) (Wallet, error) {
	if userID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	if role != RoleAffiliate && role != RoleInstagram {
		s.observeRole(role, OutcomeInvalid)
		return Wallet{}, ErrInvalidRole
	}

	now := s.clock().UTC()
	w, changed, err := s.store.SetRole(ctx, userID, role, now)

	entry := RoleAssignment{UserID: userID, Requested: role, Changed: changed, Err: err, At: now}
	var locked *RoleLockedError
	switch {
	case errors.As(err, &locked):
		entry.Previous = locked.Current
	case err == nil && changed:
		entry.Previous = RoleNone
	case err == nil:
		entry.Previous = role
	}
	s.recordAudit(ctx, entry)

	if err != nil {
		s.observeRole(role, OutcomeOf(err))
		logger.From(ctx).Info("marketing role assignment rejected", "user_id", userID, "role", role, "err", err)
		return Wallet{}, err
	}
	s.observeRole(role, OutcomeApplied)
	if changed {
		s.invalidate(ctx, w)
		logger.From(ctx).Info("marketing role locked", "user_id", userID, "role", role)
	}
	return w, nil
}

func (s *Service) mutate(ctx context.Context, req MutationRequest, dir Direction, dedup bool) (ApplyResult, error) {
	start := s.clock()
	if err := validateRequest(req, dedup); err != nil {
		s.observe(req, dir, OutcomeInvalid, start)
		return ApplyResult{}, err
	}

	res, err := s.store.ApplyDelta(ctx, Delta{
		UserID:      req.UserID,
		Kind:        req.Kind,
		Direction:   dir,
		Amount:      req.Amount,
		Source:      req.Source,
		ReferenceID: req.ReferenceID,
		Description: req.Description,
		Dedup:       dedup,
		At:          start.UTC(),
	})
	if err != nil {
		s.observe(req, dir, OutcomeOf(err), start)
		log := logger.From(ctx).With("user_id", req.UserID, "kind", req.Kind, "direction", dir, "source", req.Source)
		if errors.Is(err, ErrStoreUnavailable) {
			log.Error("ledger mutation failed", "err", err)
		} else {
			log.Info("ledger mutation rejected", "err", err)
		}
		return ApplyResult{}, err
	}

	if res.Duplicate {
		s.observe(req, dir, OutcomeDuplicate, start)
		logger.From(ctx).Debug("ledger credit skipped as duplicate",
			"user_id", req.UserID, "kind", req.Kind, "source", req.Source, "reference_id", req.ReferenceID)
		return res, nil
	}

	s.observe(req, dir, OutcomeApplied, start)
	s.invalidate(ctx, res.Wallet)
	logger.From(ctx).Debug("ledger mutation applied",
		"user_id", req.UserID,
		"kind", req.Kind,
		"direction", dir,
		"amount", req.Amount.String(),
		"source", req.Source,
		"transaction_id", res.Transaction.ID,
	)
	return res, nil
}

func validateRequest(req MutationRequest, dedup bool) error {
	if req.UserID == "" || req.Source == "" || !req.Kind.Valid() {
		return ErrInvalidArgument
	}
	if dedup && req.ReferenceID == "" {
		return ErrInvalidArgument
	}
	return validateAmount(req.Kind, req.Amount)
}

func (s *Service) invalidate(ctx context.Context, w Wallet) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, w); err != nil {
		logger.From(ctx).Warn("wallet cache invalidation failed", "user_id", w.UserID, "err", err)
	}
}

func (s *Service) recordAudit(ctx context.Context, e RoleAssignment) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordRoleAssignment(ctx, e); err != nil {
		logger.From(ctx).Warn("role assignment audit failed", "user_id", e.UserID, "err", err)
	}
}

func (s *Service) observe(req MutationRequest, dir Direction, outcome string, start time.Time) {
	if s.obs == nil {
		return
	}
	s.obs.ObserveMutation(req.Kind, dir, req.Source, outcome, s.clock().Sub(start))
}

func (s *Service) observeRole(role MarketingRole, outcome string) {
	if s.obs == nil {
		return
	}
	s.obs.ObserveRoleAssignment(role, outcome)
}

// OutcomeOf maps a mutation error to its metrics and audit label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, ErrInsufficientBalance):
		return OutcomeInsufficient
	case errors.Is(err, ErrRoleRestricted):
		return OutcomeRestricted
	case errors.Is(err, ErrRoleLocked):
		return OutcomeLocked
	case errors.Is(err, ErrStoreUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeInvalid
	}
}
