package wallet

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names one of the sub-balances tracked per wallet.
// Keep values stable; they are persisted in wallet_transactions.wallet_kind.
type Kind string

const (
	KindLoyaltyCoins       Kind = "loyalty_coins"
	KindAffiliateEarnings  Kind = "affiliate_earnings"
	KindInstagramRewards   Kind = "instagram_rewards"
	KindRefundCredits      Kind = "refund_credits"
	KindPromotionalCredits Kind = "promotional_credits"
)

// Kinds lists every sub-balance in display order.
var Kinds = []Kind{
	KindLoyaltyCoins,
	KindAffiliateEarnings,
	KindInstagramRewards,
	KindRefundCredits,
	KindPromotionalCredits,
}

func (k Kind) Valid() bool {
	switch k {
	case KindLoyaltyCoins, KindAffiliateEarnings, KindInstagramRewards, KindRefundCredits, KindPromotionalCredits:
		return true
	default:
		return false
	}
}

// Scale is the number of fractional digits a kind is stored with.
// Coin kinds are whole units; currency kinds carry cents.
func (k Kind) Scale() int32 {
	switch k {
	case KindLoyaltyCoins, KindInstagramRewards:
		return 0
	default:
		return 2
	}
}

// IsCoin reports whether the kind is counted in coins rather than base currency.
func (k Kind) IsCoin() bool { return k.Scale() == 0 }

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

func (d Direction) Valid() bool { return d == DirectionCredit || d == DirectionDebit }

// MarketingRole gates which earning sub-balance is spendable.
// Once set away from none it is permanent.
type MarketingRole string

const (
	RoleNone      MarketingRole = "none"
	RoleAffiliate MarketingRole = "affiliate"
	RoleInstagram MarketingRole = "instagram"
)

func (r MarketingRole) Valid() bool {
	return r == RoleNone || r == RoleAffiliate || r == RoleInstagram
}

// Sources used by the service and the event adapters.
const (
	SourceRedemption          = "redemption"
	SourceOrderReward         = "order_reward"
	SourceAffiliateCommission = "affiliate_commission"
	SourceReferralBonus       = "referral_bonus"
	SourceOfferBonus          = "offer_bonus"
	SourceInstagramReward     = "instagram_reward"
	SourceCouponRedemption    = "coupon_redemption"
	SourceOrderRefund         = "order_refund"
	SourceAdminAdjustment     = "admin_adjustment"
)

// adminSourcePrefix marks sources an operator may write by hand. Every other
// source is reserved for the service and the event adapters.
const adminSourcePrefix = "admin_"

// IsAdminSource reports whether src may be used for a manual adjustment.
func IsAdminSource(src string) bool {
	return len(src) > len(adminSourcePrefix) && strings.HasPrefix(src, adminSourcePrefix)
}

// Balances holds the native-unit amount per kind. Missing kinds are zero.
type Balances map[Kind]decimal.Decimal

func (b Balances) Get(k Kind) decimal.Decimal {
	if v, ok := b[k]; ok {
		return v
	}
	return decimal.Zero
}

func (b Balances) clone() Balances {
	out := make(Balances, len(Kinds))
	for _, k := range Kinds {
		out[k] = b.Get(k)
	}
	return out
}

// Wallet is the per-user ledger record.
//
// Invariants:
// - no sub-balance is ever negative
// - every balance change has exactly one Transaction
// - SpendableTotal is a cache, recomputed on every balance or role change
type Wallet struct {
	UserID         string          `json:"user_id" db:"user_id"`
	Balances       Balances        `json:"balances"`
	MarketingRole  MarketingRole   `json:"marketing_role" db:"marketing_role"`
	RoleLockedAt   *time.Time      `json:"role_locked_at,omitempty" db:"role_locked_at"`
	SpendableTotal decimal.Decimal `json:"spendable_total" db:"spendable_total"`
	LastUpdated    time.Time       `json:"last_updated" db:"last_updated"`
}

// NewWallet returns the zero wallet a user gets on first reference.
func NewWallet(userID string) Wallet {
	return Wallet{
		UserID:         userID,
		Balances:       Balances{}.clone(),
		MarketingRole:  RoleNone,
		SpendableTotal: decimal.Zero,
	}
}

func (w Wallet) clone() Wallet {
	out := w
	out.Balances = w.Balances.clone()
	if w.RoleLockedAt != nil {
		t := *w.RoleLockedAt
		out.RoleLockedAt = &t
	}
	return out
}

// Transaction is an immutable journal entry. Amount is always positive;
// the sign lives in Direction.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Kind         Kind            `json:"wallet_kind" db:"wallet_kind"`
	Direction    Direction       `json:"direction" db:"direction"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	Source       string          `json:"source" db:"source"`
	ReferenceID  string          `json:"reference_id,omitempty" db:"reference_id"`
	Description  string          `json:"description,omitempty" db:"description"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Signed returns the amount with the direction applied.
func (t Transaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// BreakdownLine is the display projection of one sub-balance.
type BreakdownLine struct {
	Kind      Kind            `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Value     decimal.Decimal `json:"value"`
	Spendable bool            `json:"spendable"`
	// Stranded marks a role-gated balance that can never become spendable
	// because the other marketing role is locked in.
	Stranded bool `json:"stranded,omitempty"`
}

// Breakdown is a read-only projection for display. It is not a source of truth.
type Breakdown struct {
	UserID         string          `json:"user_id"`
	MarketingRole  MarketingRole   `json:"marketing_role"`
	Lines          []BreakdownLine `json:"lines"`
	SpendableTotal decimal.Decimal `json:"spendable_total"`
}

// Line returns the breakdown line for kind.
func (b Breakdown) Line(k Kind) (BreakdownLine, bool) {
	for _, l := range b.Lines {
		if l.Kind == k {
			return l, true
		}
	}
	return BreakdownLine{}, false
}
