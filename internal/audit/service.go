package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information: marketing role decisions and
// manual balance adjustments.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Reader is implemented by repositories that can list events back.
type Reader interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]Event, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ForUser lists the newest events recorded against a wallet owner.
func (s *Service) ForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if userID == "" {
		return nil, ErrInvalidEvent
	}
	rd, ok := s.repo.(Reader)
	if !ok {
		return nil, errors.New("audit: repository does not support listing")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return rd.ListForUser(ctx, userID, limit)
}

// Actor identifies who triggered an audited action.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// LogRoleAssignment records one marketing role assignment attempt, including
// rejected ones.
func (s *Service) LogRoleAssignment(ctx context.Context, userID string, actor Actor, previous, requested, outcome string, at time.Time) error {
	return s.Append(ctx, Event{
		UserID:      userID,
		Type:        EventTypeRoleAssignment,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		Outcome:     outcome,
		Message:     previous + " -> " + requested,
		CreatedAt:   at,
	})
}

// LogAdminAdjustment records a manual credit or debit by an operator.
func (s *Service) LogAdminAdjustment(ctx context.Context, userID string, actor Actor, kind, direction, amount, referenceID, note, outcome string) error {
	return s.Append(ctx, Event{
		UserID:      userID,
		Type:        EventTypeAdminAdjustment,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		WalletKind:  kind,
		ReferenceID: referenceID,
		Outcome:     outcome,
		Message:     direction + " " + amount,
		Metadata:    note,
	})
}

type actorKey struct{}

// WithActor attaches the calling identity so deeper layers can attribute events.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the identity attached by WithActor, if any.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{}
}
