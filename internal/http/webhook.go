package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nurpe/skillspot-settlement/internal/gateway"
	"github.com/nurpe/skillspot-settlement/internal/http/middleware"
)

const stripeSignatureHeader = "Stripe-Signature"

// stripeWebhook acknowledges every verified notification. Processing errors
// are logged rather than returned so the processor does not retry events the
// reconciler cannot apply.
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	log := h.log.With().Str("request_id", middleware.GetRequestID(c)).Logger()

	result, err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "success", "applied": len(result.Applied)})
	case errors.Is(err, gateway.ErrUnsupportedEvent):
		log.Debug().Err(err).Msg("webhook event ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.Is(err, gateway.ErrInvalidSignature),
		errors.Is(err, gateway.ErrMalformedEvent),
		errors.Is(err, gateway.ErrDisabled):
		log.Warn().Err(err).Msg("webhook rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("webhook processing failed")
		c.JSON(http.StatusOK, gin.H{"status": "error"})
	}
}
