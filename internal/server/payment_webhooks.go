package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/stafflane/stafflane/internal/gateway/domain"
	webhookdomain "github.com/stafflane/stafflane/internal/webhook/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook is the gateway-facing ingress. Bad signatures and
// malformed payloads are 400 (redelivery cannot fix them); a dispatch
// failure is 502 so the gateway redelivers, and the event store re-drives
// any delivery still stuck in received.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: errorPayload{Code: "invalid_payload", Message: "unreadable payload"}})
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		switch {
		case errors.Is(err, gatewaydomain.ErrInvalidSignature):
			c.JSON(http.StatusBadRequest, errorResponse{Error: errorPayload{Code: "invalid_signature", Message: "signature verification failed"}})
		case errors.Is(err, webhookdomain.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, errorResponse{Error: errorPayload{Code: "invalid_payload", Message: "malformed event payload"}})
		default:
			s.log.Error("webhook processing failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, errorResponse{Error: errorPayload{Code: "processing_failed", Message: "event processing failed"}})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": result.Duplicate})
}
