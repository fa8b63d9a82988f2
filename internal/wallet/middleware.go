package wallet

import (
	"context"
	"net/http"
	"strings"

	"storefront-wallet/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const headerRedeemValue = "X-Wallet-Redeem-Value"

// SpendableReader is the minimal wallet service interface needed by middleware.
type SpendableReader interface {
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	SpendableTotal(w Wallet) decimal.Decimal
}

// RequireSpendable blocks checkout requests whose intended wallet payment
// exceeds the caller's spendable total.
//
// - Reads the base-currency value from X-Wallet-Redeem-Value
// - Uses auth context for user_id
// - The authoritative wallet is read; the display cache is never consulted
//
// This is an early reject only. The debit itself re-checks under the wallet lock.
func RequireSpendable(svc SpendableReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		raw := strings.TrimSpace(c.GetHeader(headerRedeemValue))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "redeem value required"})
			return
		}
		want, err := decimal.NewFromString(raw)
		if err != nil || !want.IsPositive() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "redeem value invalid"})
			return
		}

		w, err := svc.GetWallet(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "wallet lookup failed"})
			return
		}
		if svc.SpendableTotal(w).LessThan(want) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient spendable balance"})
			return
		}

		c.Next()
	}
}
