package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrations returns the audit_events schema. Rows are insert-only.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
  id            UUID PRIMARY KEY,
  user_id       TEXT NOT NULL,
  type          TEXT NOT NULL,
  actor_user_id TEXT NOT NULL DEFAULT '',
  actor_role    TEXT NOT NULL DEFAULT '',
  ip_address    TEXT NOT NULL DEFAULT '',
  wallet_kind   TEXT NOT NULL DEFAULT '',
  reference_id  TEXT NOT NULL DEFAULT '',
  outcome       TEXT NOT NULL DEFAULT '',
  message       TEXT NOT NULL DEFAULT '',
  metadata      TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_user_created ON audit_events (user_id, created_at)`,
		`CREATE OR REPLACE FUNCTION audit_events_immutable() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'audit_events is append-only';
END;
$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS audit_events_no_mutation ON audit_events`,
		`CREATE TRIGGER audit_events_no_mutation BEFORE UPDATE OR DELETE ON audit_events
FOR EACH ROW EXECUTE FUNCTION audit_events_immutable()`,
	}
}

// Migrate applies Migrations in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit migrate: %w", err)
		}
	}
	return nil
}

// PostgresRepo stores events in audit_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_events
  (id, user_id, type, actor_user_id, actor_role, ip_address, wallet_kind, reference_id, outcome, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.UserID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
		e.WalletKind, e.ReferenceID, e.Outcome, e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

// ListForUser returns up to limit events for userID, newest first.
func (r *PostgresRepo) ListForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, type, actor_user_id, actor_role, ip_address,
       wallet_kind, reference_id, outcome, message, metadata, created_at
FROM audit_events
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.UserID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.WalletKind, &e.ReferenceID, &e.Outcome, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	return out, nil
}
