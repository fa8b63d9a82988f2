package httpapi

import (
	"errors"
	"net/http"

	"storefront-wallet/internal/wallet"

	"github.com/gin-gonic/gin"
)

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidArgument),
		errors.Is(err, wallet.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, wallet.ErrRoleRestricted):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrRoleLocked):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, wallet.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, wallet.ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, wallet.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, wallet.ErrRoleRestricted):
		return "role_restricted"
	case errors.Is(err, wallet.ErrRoleLocked):
		return "role_locked"
	case errors.Is(err, wallet.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

// writeError aborts with the mapped status. Server-side failures are attached
// to the gin context so the request logger records them; their detail is not
// sent to the client.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": codeFor(err)}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, body)
		return
	}

	body["message"] = err.Error()
	var ie *wallet.InsufficientBalanceError
	if errors.As(err, &ie) {
		body["kind"] = ie.Kind
		body["available"] = ie.Available
		body["requested"] = ie.Requested
	}
	var le *wallet.RoleLockedError
	if errors.As(err, &le) {
		body["current_role"] = le.Current
	}
	var re *wallet.RoleRestrictedError
	if errors.As(err, &re) {
		body["kind"] = re.Kind
		body["marketing_role"] = re.Role
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": msg})
}
