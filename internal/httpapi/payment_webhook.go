package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/payments"
	"github.com/casefunnel/lead-intake/internal/usecase"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// PaymentWebhookHandler receives billing events from the payments vendor.
type PaymentWebhookHandler struct {
	verifier *payments.Verifier
	billing  *usecase.BillingService
}

// NewPaymentWebhookHandler creates the handler.
func NewPaymentWebhookHandler(verifier *payments.Verifier, billing *usecase.BillingService) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{verifier: verifier, billing: billing}
}

// HandlePaymentWebhook is POST /webhooks/payments. The signature is verified
// over the raw body before any parsing; an invalid signature is a hard 400.
func (h *PaymentWebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apperrors.ErrBadRequest)
		return
	}

	signature := c.GetHeader("X-Payment-Signature")
	if err := h.verifier.Verify(signature, body); err != nil {
		observer.IncPaymentEvent("unknown", "bad_signature")
		logger.FromContext(c.Request.Context()).Warn("Rejected payment webhook with bad signature",
			zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid webhook signature"})
		return
	}

	if err := h.billing.HandleEvent(c.Request.Context(), body); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
