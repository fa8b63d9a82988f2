package httpapi

import (
	"net/http"
	"strconv"

	"storefront-wallet/internal/audit"
	"storefront-wallet/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GetWallet returns the caller's display wallet. It may lag a concurrent
// mutation by one cache round trip.
func (h Handlers) GetWallet(c *gin.Context) {
	w, err := h.Wallet.DisplayWallet(c.Request.Context(), subject(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.walletBody(w))
}

func (h Handlers) ListTransactions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	txs, err := h.Wallet.Transactions(c.Request.Context(), subject(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

type redeemRequest struct {
	Kind        wallet.Kind     `json:"kind" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description"`
}

// Redeem debits one sub-balance for checkout.
func (h Handlers) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	w, err := h.Wallet.Redeem(c.Request.Context(), subject(c), req.Kind, req.Amount, req.ReferenceID, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.walletBody(w))
}

// AuthorizeSpend runs behind wallet.RequireSpendable; reaching it means the
// requested value is covered right now.
func (h Handlers) AuthorizeSpend(c *gin.Context) {
	w, err := h.Wallet.GetWallet(c.Request.Context(), subject(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": true, "spendable_total": h.Wallet.SpendableTotal(w)})
}

type assignRoleRequest struct {
	Role wallet.MarketingRole `json:"role" binding:"required"`
}

func (h Handlers) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := audit.WithActor(c.Request.Context(), actor(c))
	w, err := h.Wallet.AssignRole(ctx, subject(c), req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.walletBody(w))
}
