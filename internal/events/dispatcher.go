package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-wallet/internal/wallet"
	"storefront-wallet/pkg/logger"
)

// Event types accepted on the wire.
const (
	TypeOrderCompleted    = "order.completed"
	TypeReferralCompleted = "referral.completed"
	TypeOfferBonus        = "offer.bonus"
	TypeInstagramApproved = "instagram.approved"
	TypeCouponRedeemed    = "coupon.redeemed"
	TypeReturnRefunded    = "return.refunded"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("malformed event")
)

// Envelope is the wire shape shared by Kafka messages and POST /internal/events.
type Envelope struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses raw bytes into an Envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: type is required", ErrMalformedEvent)
	}
	return env, nil
}

func malformed(eventType, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedEvent, eventType, reason)
}

// Observer receives dispatch outcomes (metrics).
type Observer interface {
	ObserveEvent(eventType, outcome string)
	ObserveEventRetry(eventType string)
}

// Outcome labels for Observer.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

type Dispatcher struct {
	adapter *Adapter
	obs     Observer
}

func NewDispatcher(adapter *Adapter, obs Observer) *Dispatcher {
	return &Dispatcher{adapter: adapter, obs: obs}
}

// Dispatch routes the envelope to its adapter.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) (Result, error) {
	res, err := d.route(ctx, env)

	log := logger.From(ctx).With("event_type", env.Type, "event_id", env.ID)
	outcome := OutcomeApplied
	switch {
	case err != nil && IsPermanent(err):
		outcome = OutcomeRejected
		log.Warn("event rejected", "err", err)
	case err != nil:
		outcome = OutcomeFailed
		log.Error("event dispatch failed", "err", err)
	case res.Applied() == 0:
		outcome = OutcomeDuplicate
		log.Debug("event already applied", "credits", len(res.Credits))
	default:
		log.Info("event applied", "credits", res.Applied())
	}
	if d.obs != nil {
		d.obs.ObserveEvent(env.Type, outcome)
	}
	return res, err
}

// DispatchRaw decodes and dispatches one serialized envelope.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte) (string, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		if d.obs != nil {
			d.obs.ObserveEvent("invalid", OutcomeRejected)
		}
		return "", err
	}
	_, err = d.Dispatch(ctx, env)
	return env.Type, err
}

func (d *Dispatcher) route(ctx context.Context, env Envelope) (Result, error) {
	switch env.Type {
	case TypeOrderCompleted:
		var e OrderCompleted
		if err := decodePayload(env, &e); err != nil {
			return Result{}, err
		}
		return d.adapter.OrderCompleted(ctx, e)
	case TypeReferralCompleted:
		var e ReferralCompleted
		if err := decodePayload(env, &e); err != nil {
			return Result{}, err
		}
		return d.adapter.ReferralCompleted(ctx, e)
	case TypeOfferBonus:
		var e OfferBonus
		if err := decodePayload(env, &e); err != nil {
			return Result{}, err
		}
		return d.adapter.OfferBonus(ctx, e)
	case TypeInstagramApproved:
		var e InstagramApproved
		if err := decodePayload(env, &e); err != nil {
			return Result{}, err
		}
		return d.adapter.InstagramApproved(ctx, e)
	case TypeCouponRedeemed:
		var e CouponRedeemed
		if err := decodePayload(env, &e); err != nil {
			return Result{}, err
		}
		return d.adapter.CouponRedeemed(ctx, e)
	case TypeReturnRefunded:
		var e ReturnRefunded
		if err := decodePayload(env, &e); err != nil {
			return Result{}, err
		}
		return d.adapter.ReturnRefunded(ctx, e)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func decodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return malformed(env.Type, "payload is required")
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return malformed(env.Type, err.Error())
	}
	return nil
}

// IsPermanent reports whether redelivering the same event cannot succeed.
// Only store outages and cancellations are transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, wallet.ErrStoreUnavailable) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Observer returns the configured observer, possibly nil.
func (d *Dispatcher) Observer() Observer { return d.obs }
