package httpapi

import (
	"errors"
	"net/http"

	"storefront-wallet/internal/events"

	"github.com/gin-gonic/gin"
)

// IngestEvent accepts one envelope from producers that do not publish to Kafka.
// Transient failures answer 503 so the producer retries; every credit is
// deduplicated by reference, so redelivery is safe.
func (h Handlers) IngestEvent(c *gin.Context) {
	if h.Events == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event intake not configured"})
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	env, err := events.DecodeEnvelope(raw)
	if err != nil {
		if obs := h.Events.Observer(); obs != nil {
			obs.ObserveEvent("invalid", events.OutcomeRejected)
		}
		badRequest(c, err.Error())
		return
	}

	res, err := h.Events.Dispatch(c.Request.Context(), env)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"type": env.Type, "applied": res.Applied(), "credits": res.Credits})
	case errors.Is(err, events.ErrUnknownEvent), errors.Is(err, events.ErrMalformedEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "rejected", "message": err.Error()})
	case events.IsPermanent(err):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": codeFor(err), "message": err.Error()})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "retry"})
	}
}
