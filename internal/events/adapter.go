// Package events turns storefront domain events into idempotent ledger credits.
//
// Every credit goes through CreditOnce keyed by (user, kind, source,
// reference_id), so redelivering an event never double-credits.
package events

import (
	"context"
	"fmt"

	"storefront-wallet/internal/wallet"

	"github.com/shopspring/decimal"
)

// Crediter is the subset of wallet.Service the adapters need.
type Crediter interface {
	CreditOnce(ctx context.Context, req wallet.MutationRequest) (wallet.Wallet, bool, error)
}

// Rules are the earning rates applied to events. Fixed at process start.
type Rules struct {
	// OrderCoinsPerUnit is loyalty coins granted per base-currency unit of order total.
	OrderCoinsPerUnit decimal.Decimal
	// AffiliateCommissionRate is the share of order total paid to the attributed affiliate.
	AffiliateCommissionRate decimal.Decimal
	// ReferralBonusCoins applies when a referral event carries no explicit bonus.
	ReferralBonusCoins decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		OrderCoinsPerUnit:       decimal.NewFromInt(1),
		AffiliateCommissionRate: decimal.New(5, -2),
		ReferralBonusCoins:      decimal.NewFromInt(100),
	}
}

type Adapter struct {
	ledger Crediter
	rules  Rules
}

func NewAdapter(ledger Crediter, rules Rules) *Adapter {
	return &Adapter{ledger: ledger, rules: rules}
}

// Credit is one ledger credit an event produced.
type Credit struct {
	UserID      string          `json:"user_id"`
	Kind        wallet.Kind     `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source"`
	ReferenceID string          `json:"reference_id"`
	Applied     bool            `json:"applied"`
}

// Result lists the credits an event resolved to. Credits with Applied=false
// were already present from an earlier delivery.
type Result struct {
	Credits []Credit `json:"credits"`
}

// Applied counts credits written by this delivery.
func (r Result) Applied() int {
	n := 0
	for _, c := range r.Credits {
		if c.Applied {
			n++
		}
	}
	return n
}

type OrderCompleted struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	OrderTotal decimal.Decimal `json:"order_total"`
	// AffiliateUserID is set when the order was attributed to an affiliate link.
	AffiliateUserID string `json:"affiliate_user_id,omitempty"`
}

type ReferralCompleted struct {
	ReferralID     string          `json:"referral_id"`
	ReferrerUserID string          `json:"referrer_user_id"`
	BonusCoins     decimal.Decimal `json:"bonus_coins"`
}

type OfferBonus struct {
	OfferID string          `json:"offer_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
}

type InstagramApproved struct {
	SubmissionID string          `json:"submission_id"`
	UserID       string          `json:"user_id"`
	Coins        decimal.Decimal `json:"coins"`
}

type CouponRedeemed struct {
	CouponID string          `json:"coupon_id"`
	UserID   string          `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type ReturnRefunded struct {
	ReturnID string          `json:"return_id"`
	OrderID  string          `json:"order_id,omitempty"`
	UserID   string          `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// OrderCompleted grants floor(total * rate) loyalty coins to the buyer and,
// when attributed, total * commission rounded down to cents to the affiliate.
// Zero amounts are skipped.
func (a *Adapter) OrderCompleted(ctx context.Context, e OrderCompleted) (Result, error) {
	if e.OrderID == "" || e.UserID == "" || e.OrderTotal.IsNegative() {
		return Result{}, malformed("order.completed", "order_id, user_id and a non-negative order_total are required")
	}

	var credits []wallet.MutationRequest
	coins := e.OrderTotal.Mul(a.rules.OrderCoinsPerUnit).Floor()
	if coins.IsPositive() {
		credits = append(credits, wallet.MutationRequest{
			UserID:      e.UserID,
			Kind:        wallet.KindLoyaltyCoins,
			Amount:      coins,
			Source:      wallet.SourceOrderReward,
			ReferenceID: e.OrderID,
			Description: "Order reward",
		})
	}
	if e.AffiliateUserID != "" {
		commission := e.OrderTotal.Mul(a.rules.AffiliateCommissionRate).RoundFloor(2)
		if commission.IsPositive() {
			credits = append(credits, wallet.MutationRequest{
				UserID:      e.AffiliateUserID,
				Kind:        wallet.KindAffiliateEarnings,
				Amount:      commission,
				Source:      wallet.SourceAffiliateCommission,
				ReferenceID: e.OrderID,
				Description: "Affiliate commission",
			})
		}
	}
	return a.apply(ctx, credits...)
}

func (a *Adapter) ReferralCompleted(ctx context.Context, e ReferralCompleted) (Result, error) {
	if e.ReferralID == "" || e.ReferrerUserID == "" {
		return Result{}, malformed("referral.completed", "referral_id and referrer_user_id are required")
	}
	if e.BonusCoins.IsNegative() {
		return Result{}, malformed("referral.completed", "bonus_coins must not be negative")
	}
	bonus := e.BonusCoins
	if bonus.IsZero() {
		bonus = a.rules.ReferralBonusCoins
	}
	if !bonus.IsPositive() {
		return Result{}, nil
	}
	return a.apply(ctx, wallet.MutationRequest{
		UserID:      e.ReferrerUserID,
		Kind:        wallet.KindLoyaltyCoins,
		Amount:      bonus,
		Source:      wallet.SourceReferralBonus,
		ReferenceID: e.ReferralID,
		Description: "Referral bonus",
	})
}

// OfferBonus references offer and user together: one offer pays many users.
func (a *Adapter) OfferBonus(ctx context.Context, e OfferBonus) (Result, error) {
	if e.OfferID == "" || e.UserID == "" {
		return Result{}, malformed("offer.bonus", "offer_id and user_id are required")
	}
	return a.apply(ctx, wallet.MutationRequest{
		UserID:      e.UserID,
		Kind:        wallet.KindPromotionalCredits,
		Amount:      e.Amount,
		Source:      wallet.SourceOfferBonus,
		ReferenceID: e.OfferID + ":" + e.UserID,
		Description: "Offer bonus",
	})
}

func (a *Adapter) InstagramApproved(ctx context.Context, e InstagramApproved) (Result, error) {
	if e.SubmissionID == "" || e.UserID == "" {
		return Result{}, malformed("instagram.approved", "submission_id and user_id are required")
	}
	return a.apply(ctx, wallet.MutationRequest{
		UserID:      e.UserID,
		Kind:        wallet.KindInstagramRewards,
		Amount:      e.Coins,
		Source:      wallet.SourceInstagramReward,
		ReferenceID: e.SubmissionID,
		Description: "Instagram post reward",
	})
}

func (a *Adapter) CouponRedeemed(ctx context.Context, e CouponRedeemed) (Result, error) {
	if e.CouponID == "" || e.UserID == "" {
		return Result{}, malformed("coupon.redeemed", "coupon_id and user_id are required")
	}
	return a.apply(ctx, wallet.MutationRequest{
		UserID:      e.UserID,
		Kind:        wallet.KindPromotionalCredits,
		Amount:      e.Amount,
		Source:      wallet.SourceCouponRedemption,
		ReferenceID: e.CouponID,
		Description: "Coupon credit",
	})
}

func (a *Adapter) ReturnRefunded(ctx context.Context, e ReturnRefunded) (Result, error) {
	if e.ReturnID == "" || e.UserID == "" {
		return Result{}, malformed("return.refunded", "return_id and user_id are required")
	}
	desc := "Refund for return " + e.ReturnID
	if e.OrderID != "" {
		desc = fmt.Sprintf("Refund for order %s (return %s)", e.OrderID, e.ReturnID)
	}
	return a.apply(ctx, wallet.MutationRequest{
		UserID:      e.UserID,
		Kind:        wallet.KindRefundCredits,
		Amount:      e.Amount,
		Source:      wallet.SourceOrderRefund,
		ReferenceID: e.ReturnID,
		Description: desc,
	})
}

// apply issues the credits in order. On failure the credits already applied
// stay applied; redelivery skips them as duplicates.
func (a *Adapter) apply(ctx context.Context, reqs ...wallet.MutationRequest) (Result, error) {
	var res Result
	for _, req := range reqs {
		_, applied, err := a.ledger.CreditOnce(ctx, req)
		if err != nil {
			return res, fmt.Errorf("credit %s to %s: %w", req.Kind, req.UserID, err)
		}
		res.Credits = append(res.Credits, Credit{
			UserID:      req.UserID,
			Kind:        req.Kind,
			Amount:      req.Amount,
			Source:      req.Source,
			ReferenceID: req.ReferenceID,
			Applied:     applied,
		})
	}
	return res, nil
}
