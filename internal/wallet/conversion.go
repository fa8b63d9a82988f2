package wallet

import "github.com/shopspring/decimal"

// Rates is the currency conversion table: value of one native unit of a
// kind in base currency. It is fixed at process start.
type Rates map[Kind]decimal.Decimal

// DefaultRates returns the observed storefront rates: coins are worth 0.10,
// currency-denominated kinds are already in base currency.
func DefaultRates() Rates {
	coin := decimal.New(10, -2)
	return Rates{
		KindLoyaltyCoins:       coin,
		KindInstagramRewards:   coin,
		KindAffiliateEarnings:  decimal.NewFromInt(1),
		KindRefundCredits:      decimal.NewFromInt(1),
		KindPromotionalCredits: decimal.NewFromInt(1),
	}
}

// WithCoinValues returns a copy of r with the two coin rates replaced.
// Non-positive values keep the existing rate.
func (r Rates) WithCoinValues(loyalty, instagram decimal.Decimal) Rates {
	out := make(Rates, len(r))
	for k, v := range r {
		out[k] = v
	}
	if loyalty.IsPositive() {
		out[KindLoyaltyCoins] = loyalty
	}
	if instagram.IsPositive() {
		out[KindInstagramRewards] = instagram
	}
	return out
}

// ValuePerUnit returns the base-currency value of one unit of kind.
// Unknown kinds are worth nothing.
func (r Rates) ValuePerUnit(k Kind) decimal.Decimal {
	if v, ok := r[k]; ok {
		return v
	}
	return decimal.Zero
}

// Value converts a native amount of kind into base currency.
func (r Rates) Value(k Kind, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.ValuePerUnit(k))
}

// SpendableTotal sums the base-currency value of every spendable kind.
func (r Rates) SpendableTotal(w Wallet) decimal.Decimal {
	total := decimal.Zero
	for _, k := range Kinds {
		if !IsSpendable(w, k) {
			continue
		}
		total = total.Add(r.Value(k, w.Balances.Get(k)))
	}
	return total.Round(2)
}
