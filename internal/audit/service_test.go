package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresUserAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeAdminAdjustment}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{UserID: "u"}); err == nil {
		t.Fatalf("expected error")
	}
	if n := len(repo.Events()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestService_LogRoleAssignment(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	at := time.Unix(1700000000, 0).UTC()
	actor := Actor{UserID: "u1", Role: "customer", IP: "1.2.3.4"}
	if err := svc.LogRoleAssignment(context.Background(), "u1", actor, "none", "affiliate", "applied", at); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.ForUser("u1")
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || !e.CreatedAt.Equal(at) {
		t.Fatalf("expected id and created_at set: %+v", e)
	}
	if e.Type != EventTypeRoleAssignment || e.Outcome != "applied" || e.Message != "none -> affiliate" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.IPAddress != "1.2.3.4" || e.ActorRole != "customer" {
		t.Fatalf("actor not captured: %+v", e)
	}
}

func TestService_LogAdminAdjustmentStampsTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Unix(1700000500, 0).UTC()
	svc.clock = func() time.Time { return fixed }

	if err := svc.LogAdminAdjustment(context.Background(), "u2", Actor{UserID: "ops", Role: "admin"},
		"refund_credits", "credit", "12.50", "ticket-9", "goodwill", "applied"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || !evs[0].CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected events: %+v", evs)
	}
	if evs[0].WalletKind != "refund_credits" || evs[0].Message != "credit 12.50" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if got := len(repo.ForUser("someone-else")); got != 0 {
		t.Fatalf("expected no events for other user, got %d", got)
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	if a := ActorFrom(context.Background()); a != (Actor{}) {
		t.Fatalf("expected zero actor")
	}
	ctx := WithActor(context.Background(), Actor{UserID: "x", Role: "admin"})
	if a := ActorFrom(ctx); a.UserID != "x" || a.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", a)
	}
}

func TestService_ForUserNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	base := time.Unix(1700000000, 0).UTC()
	for i, req := range []string{"affiliate", "instagram", "affiliate"} {
		if err := svc.LogRoleAssignment(ctx, "u1", Actor{}, "none", req, "applied", base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	if err := svc.LogRoleAssignment(ctx, "u2", Actor{}, "none", "affiliate", "applied", base); err != nil {
		t.Fatalf("log: %v", err)
	}

	got, err := svc.ForUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if len(got) != 2 || got[0].Message != "none -> affiliate" || got[1].Message != "none -> instagram" {
		t.Fatalf("unexpected events: %+v", got)
	}
	if _, err := svc.ForUser(ctx, "", 0); err == nil {
		t.Fatalf("expected error for empty user")
	}
}

type appendOnlyRepo struct{}

func (appendOnlyRepo) Append(context.Context, Event) error { return nil }

func TestService_ForUserRequiresReader(t *testing.T) {
	if _, err := NewService(appendOnlyRepo{}).ForUser(context.Background(), "u1", 0); err == nil {
		t.Fatalf("expected error")
	}
}
