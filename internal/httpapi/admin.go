package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-wallet/internal/reconcile"
	"storefront-wallet/internal/wallet"
	"storefront-wallet/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type adjustmentRequest struct {
	Kind        wallet.Kind     `json:"kind" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source"`
	ReferenceID string          `json:"reference_id"`
	Description string          `json:"description"`
}

// bindAdjustment decodes the body and defaults the source to admin_adjustment.
func bindAdjustment(c *gin.Context) (adjustmentRequest, bool) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return req, false
	}
	if req.Source == "" {
		req.Source = wallet.SourceAdminAdjustment
	}
	if !wallet.IsAdminSource(req.Source) {
		badRequest(c, "source must start with admin_")
		return req, false
	}
	return req, true
}

func (r adjustmentRequest) mutation(userID string) wallet.MutationRequest {
	return wallet.MutationRequest{
		UserID:      userID,
		Kind:        r.Kind,
		Amount:      r.Amount,
		Source:      r.Source,
		ReferenceID: r.ReferenceID,
		Description: r.Description,
	}
}

// AdminGetWallet returns the authoritative wallet, bypassing the display cache.
func (h Handlers) AdminGetWallet(c *gin.Context) {
	w, err := h.Wallet.GetWallet(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.walletBody(w))
}

// AdminCredit applies a manual credit. With a reference_id the credit is
// idempotent and a repeat returns applied=false.
func (h Handlers) AdminCredit(c *gin.Context) {
	req, ok := bindAdjustment(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	var (
		w       wallet.Wallet
		applied = true
		err     error
	)
	if req.ReferenceID != "" {
		w, applied, err = h.Wallet.CreditOnce(ctx, req.mutation(userID))
	} else {
		w, err = h.Wallet.Credit(ctx, req.mutation(userID))
	}
	outcome := wallet.OutcomeOf(err)
	if err == nil && !applied {
		outcome = wallet.OutcomeDuplicate
	}
	h.auditAdjustment(c, userID, wallet.DirectionCredit, req, outcome)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "wallet": w, "breakdown": h.Wallet.Breakdown(w)})
}

func (h Handlers) AdminDebit(c *gin.Context) {
	req, ok := bindAdjustment(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	w, err := h.Wallet.Debit(c.Request.Context(), req.mutation(userID))
	h.auditAdjustment(c, userID, wallet.DirectionDebit, req, wallet.OutcomeOf(err))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.walletBody(w))
}

func (h Handlers) auditAdjustment(c *gin.Context, userID string, dir wallet.Direction, req adjustmentRequest, outcome string) {
	if h.Audit == nil || userID == "" {
		return
	}
	ctx := c.Request.Context()
	err := h.Audit.LogAdminAdjustment(ctx, userID, actor(c), string(req.Kind), string(dir), req.Amount.String(), req.ReferenceID, req.Description, outcome)
	if err != nil {
		logger.From(ctx).Warn("audit admin adjustment failed", "user_id", userID, "err", err)
	}
}

// Verify replays the user's journal against the stored balances.
func (h Handlers) Verify(c *gin.Context) {
	if h.Reconcile == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconcile not configured"})
		return
	}
	r, err := h.Reconcile.Verify(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidRequest) {
			badRequest(c, "user_id required")
			return
		}
		writeError(c, err)
		return
	}
	if !r.Consistent {
		logger.From(c.Request.Context()).Error("wallet journal inconsistent", "user_id", r.UserID, "issues", len(r.Issues))
	}
	c.JSON(http.StatusOK, r)
}

// Activity sums journal entries per source. from/to are RFC 3339; to defaults
// to now and from to 30 days before to.
func (h Handlers) Activity(c *gin.Context) {
	if h.Reconcile == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconcile not configured"})
		return
	}
	to := time.Now().UTC()
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "to must be RFC 3339")
			return
		}
		to = t
	}
	from := to.AddDate(0, 0, -30)
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "from must be RFC 3339")
			return
		}
		from = t
	}

	sum, err := h.Reconcile.Activity(c.Request.Context(), reconcile.ActivityRequest{
		UserID: c.Param("user_id"),
		Kind:   wallet.Kind(c.Query("kind")),
		Range:  reconcile.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidRequest) {
			badRequest(c, "invalid range or kind")
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// AuditLog lists the newest audit events for a wallet owner.
func (h Handlers) AuditLog(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	evs, err := h.Audit.ForUser(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
