package wallet

// IsSpendable reports whether kind counts toward the wallet's spendable total.
// Earning kinds are gated by the marketing role; the rest always count.
func IsSpendable(w Wallet, k Kind) bool {
	switch k {
	case KindLoyaltyCoins, KindRefundCredits, KindPromotionalCredits:
		return true
	case KindAffiliateEarnings:
		return w.MarketingRole == RoleAffiliate
	case KindInstagramRewards:
		return w.MarketingRole == RoleInstagram
	default:
		return false
	}
}

// IsStranded reports whether a role-gated kind can never become spendable
// for this wallet, i.e. the other marketing role is already locked in.
func IsStranded(w Wallet, k Kind) bool {
	switch k {
	case KindAffiliateEarnings:
		return w.MarketingRole == RoleInstagram
	case KindInstagramRewards:
		return w.MarketingRole == RoleAffiliate
	default:
		return false
	}
}

// checkRoleTransition applies the exclusivity rule.
// none -> affiliate|instagram is the only transition; re-assigning the
// current role is a no-op.
func checkRoleTransition(current, requested MarketingRole) (changed bool, err error) {
	if requested != RoleAffiliate && requested != RoleInstagram {
		return false, ErrInvalidRole
	}
	if current == "" || current == RoleNone {
		return true, nil
	}
	if current == requested {
		return false, nil
	}
	return false, &RoleLockedError{Current: current, Requested: requested}
}
