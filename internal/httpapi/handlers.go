package httpapi

import (
	"storefront-wallet/internal/audit"
	"storefront-wallet/internal/auth"
	"storefront-wallet/internal/events"
	"storefront-wallet/internal/reconcile"
	"storefront-wallet/internal/wallet"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Wallet    *wallet.Service
	Reconcile *reconcile.Service
	Audit     *audit.Service
	Events    *events.Dispatcher
}

type walletResponse struct {
	Wallet    wallet.Wallet    `json:"wallet"`
	Breakdown wallet.Breakdown `json:"breakdown"`
}

func (h Handlers) walletBody(w wallet.Wallet) walletResponse {
	return walletResponse{Wallet: w, Breakdown: h.Wallet.Breakdown(w)}
}

// actor builds the audit identity of the caller.
func actor(c *gin.Context) audit.Actor {
	ctx := c.Request.Context()
	uid, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	return audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}

// subject returns the authenticated wallet owner; rbac.RequireSubject runs first.
func subject(c *gin.Context) string {
	uid, _ := auth.UserID(c.Request.Context())
	return uid
}
