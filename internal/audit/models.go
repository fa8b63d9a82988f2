package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - user_id (the wallet owner) is required.
// - actor and ip capture are best-effort; do not block ledger flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy, same trigger approach as wallet_transactions.
type Event struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated caller causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	WalletKind  string `json:"wallet_kind,omitempty" db:"wallet_kind"`
	ReferenceID string `json:"reference_id,omitempty" db:"reference_id"`

	// Outcome is "applied", "noop" or the rejection reason.
	Outcome string `json:"outcome,omitempty" db:"outcome"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeRoleAssignment  EventType = "marketing_role_assignment"
	EventTypeAdminAdjustment EventType = "admin_adjustment"
)
