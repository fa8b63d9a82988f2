package wallet

import (
	"context"

	"storefront-wallet/internal/audit"
)

// AuditAdapter bridges the role-assignment audit hook to the shared audit.Service.
// The actor is taken from the request context when handlers attached one.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) RecordRoleAssignment(ctx context.Context, e RoleAssignment) error {
	if a.Audit == nil {
		return nil
	}
	outcome := "applied"
	switch {
	case e.Err != nil:
		outcome = OutcomeOf(e.Err)
	case !e.Changed:
		outcome = "noop"
	}
	previous := string(e.Previous)
	if previous == "" {
		previous = "unknown"
	}
	return a.Audit.LogRoleAssignment(ctx, e.UserID, audit.ActorFrom(ctx), previous, string(e.Requested), outcome, e.At)
}
