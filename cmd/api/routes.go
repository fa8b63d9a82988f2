package main

import (
	"net/http"
	"time"

	"storefront-wallet/internal/bootstrap"
	"storefront-wallet/internal/httpapi"
	"storefront-wallet/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerPublicRoutes mounts the unauthenticated health and metrics endpoints.
func registerPublicRoutes(r *gin.Engine, deps *bootstrap.Deps) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), deps.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps *bootstrap.Deps, authMW gin.HandlerFunc) {
	h := httpapi.Handlers{
		Wallet:    deps.Wallet,
		Reconcile: deps.Reconcile,
		Audit:     deps.Audit,
		Events:    deps.Dispatcher,
	}
	h.Register(r, authMW)
}
