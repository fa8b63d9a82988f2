package httpapi

import (
	"storefront-wallet/internal/rbac"
	"storefront-wallet/internal/wallet"

	"github.com/gin-gonic/gin"
)

// Register mounts the wallet API on r. authMW must verify the bearer token
// and attach the identity to the request context.
func (h Handlers) Register(r gin.IRouter, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(authMW)

	// WALLET routes (the caller's own wallet)
	own := v1.Group("/wallet")
	own.Use(rbac.RequireSubject(), rbac.RequireAnyRole(rbac.RoleCustomer))
	{
		own.GET("", h.GetWallet)
		own.GET("/transactions", h.ListTransactions)
		own.POST("/redeem", h.Redeem)
		own.POST("/authorize", wallet.RequireSpendable(h.Wallet), h.AuthorizeSpend)
		own.POST("/role", h.AssignRole)
	}

	// ADMIN routes
	admin := v1.Group("/admin/wallets/:user_id")
	admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		admin.GET("", h.AdminGetWallet)
		admin.POST("/credit", h.AdminCredit)
		admin.POST("/debit", h.AdminDebit)
		admin.GET("/verify", h.Verify)
		admin.GET("/activity", h.Activity)
		admin.GET("/audit", h.AuditLog)
	}

	// Internal event intake for producers without Kafka.
	internal := r.Group("/internal")
	internal.Use(authMW, rbac.RequireAnyRole(rbac.RoleService))
	{
		internal.POST("/events", h.IngestEvent)
	}
}
