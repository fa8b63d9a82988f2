package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront-wallet/pkg/utils"

	"github.com/shopspring/decimal"
)

// Migrations returns the Postgres schema statements, one per Exec.
//
// Tables:
// - wallets: one row per user, five sub-balances + cached spendable total + role
// - wallet_transactions: immutable append-only journal
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS wallets (
  user_id             TEXT PRIMARY KEY,
  loyalty_coins       NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (loyalty_coins >= 0),
  affiliate_earnings  NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (affiliate_earnings >= 0),
  instagram_rewards   NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (instagram_rewards >= 0),
  refund_credits      NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (refund_credits >= 0),
  promotional_credits NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (promotional_credits >= 0),
  spendable_total     NUMERIC(20,2) NOT NULL DEFAULT 0,
  marketing_role      TEXT NOT NULL DEFAULT 'none' CHECK (marketing_role IN ('none','affiliate','instagram')),
  role_locked_at      TIMESTAMPTZ,
  last_updated        TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
  id            UUID PRIMARY KEY,
  user_id       TEXT NOT NULL REFERENCES wallets(user_id),
  wallet_kind   TEXT NOT NULL,
  direction     TEXT NOT NULL CHECK (direction IN ('credit','debit')),
  amount        NUMERIC(20,2) NOT NULL CHECK (amount > 0),
  balance_after NUMERIC(20,2) NOT NULL,
  source        TEXT NOT NULL,
  reference_id  TEXT,
  description   TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_tx_user_created ON wallet_transactions (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_tx_reference ON wallet_transactions (user_id, source, reference_id) WHERE reference_id IS NOT NULL`,
		`CREATE OR REPLACE FUNCTION wallet_transactions_immutable() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'wallet_transactions is append-only';
END;
$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS wallet_transactions_no_mutation ON wallet_transactions`,
		`CREATE TRIGGER wallet_transactions_no_mutation BEFORE UPDATE OR DELETE ON wallet_transactions
FOR EACH ROW EXECUTE FUNCTION wallet_transactions_immutable()`,
	}
}

// Migrate applies Migrations in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return unavailable("migrate", err)
		}
	}
	return nil
}

// PostgresStore is the durable Store.
//
// Serialisation: every mutation upserts then locks the user's wallet row
// (SELECT ... FOR UPDATE) inside one DB transaction. Writers for the same
// user queue on that row lock; other users lock other rows.
type PostgresStore struct {
	db    *sql.DB
	rates Rates
}

func NewPostgresStore(db *sql.DB, rates Rates) *PostgresStore {
	if rates == nil {
		rates = DefaultRates()
	}
	return &PostgresStore{db: db, rates: rates}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const walletColumns = `user_id, loyalty_coins, affiliate_earnings, instagram_rewards, refund_credits,
       promotional_credits, spendable_total, marketing_role, role_locked_at, last_updated`

const transactionColumns = `id, user_id, wallet_kind, direction, amount, balance_after, source,
       reference_id, description, created_at`

func (s *PostgresStore) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	w, found, err := selectWallet(ctx, s.db, userID, false)
	if err != nil {
		return Wallet{}, unavailable("get wallet", err)
	}
	if !found {
		return NewWallet(userID), nil
	}
	return w, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	q := `SELECT ` + transactionColumns + `
FROM wallet_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	out, err := queryTransactions(ctx, s.db, q, userID, clampLimit(limit))
	if err != nil {
		return nil, unavailable("list transactions", err)
	}
	return out, nil
}

// Journal returns every transaction for the user, oldest first.
func (s *PostgresStore) Journal(ctx context.Context, userID string) ([]Transaction, error) {
	q := `SELECT ` + transactionColumns + `
FROM wallet_transactions
WHERE user_id = $1
ORDER BY created_at ASC, id ASC`
	out, err := queryTransactions(ctx, s.db, q, userID)
	if err != nil {
		return nil, unavailable("journal", err)
	}
	return out, nil
}

// txAttempts bounds reruns after a deadlock or serialization failure.
const txAttempts = 3

func (s *PostgresStore) ApplyDelta(ctx context.Context, d Delta) (ApplyResult, error) {
	if err := validateDelta(d); err != nil {
		return ApplyResult{}, err
	}
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}

	var out ApplyResult
	err := utils.WithTxRetry(ctx, s.db, &sql.TxOptions{}, txAttempts, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := lockWallet(ctx, tx, d.UserID, d.At)
		if err != nil {
			return err
		}

		if d.Dedup {
			existing, ok, err := findTransactionByReference(ctx, tx, d.UserID, d.Kind, d.Source, d.ReferenceID)
			if err != nil {
				return err
			}
			if ok {
				out = ApplyResult{Wallet: cur, Transaction: existing, Duplicate: true}
				return nil
			}
		}

		next, entry, err := stageDelta(cur, d, s.rates)
		if err != nil {
			return err
		}
		if err := updateWallet(ctx, tx, next); err != nil {
			return err
		}
		if err := insertTransaction(ctx, tx, entry); err != nil {
			return err
		}
		out = ApplyResult{Wallet: next, Transaction: entry}
		return nil
	})
	if err != nil {
		return ApplyResult{}, unavailable("apply delta", err)
	}
	return out, nil
}

func (s *PostgresStore) SetRole(ctx context.Context, userID string, role MarketingRole, now time.Time) (Wallet, bool, error) {
	if userID == "" {
		return Wallet{}, false, ErrInvalidArgument
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var out Wallet
	var changed bool
	err := utils.WithTxRetry(ctx, s.db, &sql.TxOptions{}, txAttempts, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := lockWallet(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		next, ok, err := stageRole(cur, role, s.rates, now)
		if err != nil {
			return err
		}
		if ok {
			if err := updateWallet(ctx, tx, next); err != nil {
				return err
			}
		}
		out, changed = next, ok
		return nil
	})
	if err != nil {
		return Wallet{}, false, unavailable("set role", err)
	}
	return out, changed, nil
}

// lockWallet creates the wallet row on first reference and locks it for
// the rest of the transaction.
func lockWallet(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (Wallet, error) {
	const ensure = `
INSERT INTO wallets (user_id, last_updated, created_at)
VALUES ($1, $2, $2)
ON CONFLICT (user_id) DO NOTHING
`
	if _, err := tx.ExecContext(ctx, ensure, userID, now); err != nil {
		return Wallet{}, err
	}
	w, found, err := selectWallet(ctx, tx, userID, true)
	if err != nil {
		return Wallet{}, err
	}
	if !found {
		return Wallet{}, errors.New("wallet row vanished after upsert")
	}
	return w, nil
}

func selectWallet(ctx context.Context, q queryer, userID string, forUpdate bool) (Wallet, bool, error) {
	query := `SELECT ` + walletColumns + `
FROM wallets
WHERE user_id = $1`
	if forUpdate {
		query += "\nFOR UPDATE"
	}

	var w Wallet
	var loyalty, affiliate, instagram, refund, promo decimal.Decimal
	var lockedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&w.UserID,
		&loyalty,
		&affiliate,
		&instagram,
		&refund,
		&promo,
		&w.SpendableTotal,
		&w.MarketingRole,
		&lockedAt,
		&w.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, false, nil
		}
		return Wallet{}, false, err
	}
	w.Balances = Balances{
		KindLoyaltyCoins:       loyalty,
		KindAffiliateEarnings:  affiliate,
		KindInstagramRewards:   instagram,
		KindRefundCredits:      refund,
		KindPromotionalCredits: promo,
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		w.RoleLockedAt = &t
	}
	return w, true, nil
}

func updateWallet(ctx context.Context, tx *sql.Tx, w Wallet) error {
	const q = `
UPDATE wallets
SET loyalty_coins = $2,
    affiliate_earnings = $3,
    instagram_rewards = $4,
    refund_credits = $5,
    promotional_credits = $6,
    spendable_total = $7,
    marketing_role = $8,
    role_locked_at = $9,
    last_updated = $10
WHERE user_id = $1
`
	var lockedAt sql.NullTime
	if w.RoleLockedAt != nil {
		lockedAt = sql.NullTime{Time: *w.RoleLockedAt, Valid: true}
	}
	res, err := tx.ExecContext(ctx, q,
		w.UserID,
		w.Balances.Get(KindLoyaltyCoins),
		w.Balances.Get(KindAffiliateEarnings),
		w.Balances.Get(KindInstagramRewards),
		w.Balances.Get(KindRefundCredits),
		w.Balances.Get(KindPromotionalCredits),
		w.SpendableTotal,
		string(w.MarketingRole),
		lockedAt,
		w.LastUpdated,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.New("wallet update affected no rows")
	}
	return nil
}

func findTransactionByReference(ctx context.Context, tx *sql.Tx, userID string, kind Kind, source, referenceID string) (Transaction, bool, error) {
	q := `SELECT ` + transactionColumns + `
FROM wallet_transactions
WHERE user_id = $1 AND wallet_kind = $2 AND source = $3 AND reference_id = $4
ORDER BY created_at ASC
LIMIT 1`
	rows, err := queryTransactions(ctx, tx, q, userID, string(kind), source, referenceID)
	if err != nil {
		return Transaction{}, false, err
	}
	if len(rows) == 0 {
		return Transaction{}, false, nil
	}
	return rows[0], true, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t Transaction) error {
	const q = `
INSERT INTO wallet_transactions (
  id, user_id, wallet_kind, direction, amount, balance_after, source, reference_id, description, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := tx.ExecContext(ctx, q,
		t.ID,
		t.UserID,
		string(t.Kind),
		string(t.Direction),
		t.Amount,
		t.BalanceAfter,
		t.Source,
		nullString(t.ReferenceID),
		t.Description,
		t.CreatedAt,
	)
	return err
}

func queryTransactions(ctx context.Context, q queryer, query string, args ...any) ([]Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			t   Transaction
			ref sql.NullString
		)
		if err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Kind,
			&t.Direction,
			&t.Amount,
			&t.BalanceAfter,
			&t.Source,
			&ref,
			&t.Description,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.ReferenceID = ref.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
