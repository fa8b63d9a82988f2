package bootstrap

import (
	"testing"
	"time"

	"storefront-wallet/internal/config"
	"storefront-wallet/internal/events"
	"storefront-wallet/internal/wallet"

	"github.com/shopspring/decimal"
)

func TestRatesFrom(t *testing.T) {
	r := RatesFrom(config.LedgerConfig{LoyaltyCoinValue: decimal.RequireFromString("0.25")})
	if !r.ValuePerUnit(wallet.KindLoyaltyCoins).Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("unexpected loyalty rate: %s", r.ValuePerUnit(wallet.KindLoyaltyCoins))
	}
	if !r.ValuePerUnit(wallet.KindInstagramRewards).Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("zero override should keep default instagram rate")
	}
}

func TestRulesFrom(t *testing.T) {
	r := RulesFrom(config.EventsConfig{AffiliateCommissionRate: decimal.RequireFromString("0.08")})
	def := events.DefaultRules()
	if !r.AffiliateCommissionRate.Equal(decimal.RequireFromString("0.08")) {
		t.Fatalf("unexpected commission: %s", r.AffiliateCommissionRate)
	}
	if !r.OrderCoinsPerUnit.Equal(def.OrderCoinsPerUnit) || !r.ReferralBonusCoins.Equal(def.ReferralBonusCoins) {
		t.Fatalf("unset values should keep defaults: %+v", r)
	}
}

func TestRetryFrom(t *testing.T) {
	p := RetryFrom(config.EventsConfig{MaxRetries: 4, RetryBackoff: 250 * time.Millisecond})
	if p.MaxRetries != 4 || p.Backoff != 250*time.Millisecond {
		t.Fatalf("unexpected policy: %+v", p)
	}
}
