package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	clientdomain "github.com/stafflane/stafflane/internal/client/domain"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
	gatewaydomain "github.com/stafflane/stafflane/internal/gateway/domain"
	payoutdomain "github.com/stafflane/stafflane/internal/payout/domain"
	webhookdomain "github.com/stafflane/stafflane/internal/webhook/domain"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidRequest = errors.New("invalid_request")
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, billingdomain.ErrInvalidAmount),
		errors.Is(err, billingdomain.ErrInvalidCurrency),
		errors.Is(err, billingdomain.ErrInvalidIntent),
		errors.Is(err, clientdomain.ErrInvalidID),
		errors.Is(err, clientdomain.ErrInvalidName),
		errors.Is(err, clientdomain.ErrInvalidEmail),
		errors.Is(err, creditdomain.ErrInvalidClient),
		errors.Is(err, payoutdomain.ErrInvalidConsultant),
		errors.Is(err, webhookdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{Code: errCode(err), Message: err.Error()}

	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Code: "unauthorized", Message: "unauthorized"}

	case errors.Is(err, ErrForbidden),
		errors.Is(err, billingdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{Code: "forbidden", Message: "forbidden"}

	case errors.Is(err, billingdomain.ErrTransactionNotFound),
		errors.Is(err, clientdomain.ErrClientNotFound),
		errors.Is(err, creditdomain.ErrPackageNotFound),
		errors.Is(err, creditdomain.ErrLotNotFound),
		errors.Is(err, payoutdomain.ErrBatchNotFound),
		errors.Is(err, gatewaydomain.ErrIntentNotFound):
		return http.StatusNotFound, errorPayload{Code: errCode(err), Message: err.Error()}

	case errors.Is(err, billingdomain.ErrDuplicateIntent),
		errors.Is(err, billingdomain.ErrConfirmConflict),
		errors.Is(err, creditdomain.ErrWriteConflict),
		errors.Is(err, clientdomain.ErrVersionConflict):
		return http.StatusConflict, errorPayload{Code: errCode(err), Message: err.Error()}

	case errors.Is(err, billingdomain.ErrPaymentNotSucceeded),
		errors.Is(err, billingdomain.ErrNotRefundable),
		errors.Is(err, creditdomain.ErrInsufficientCredits),
		errors.Is(err, clientdomain.ErrTrialAlreadyUsed),
		errors.Is(err, gatewaydomain.ErrRejected):
		return http.StatusUnprocessableEntity, errorPayload{Code: errCode(err), Message: err.Error()}

	case errors.Is(err, gatewaydomain.ErrUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Code: "gateway_unavailable", Message: "payment gateway unavailable"}
	}

	return http.StatusInternalServerError, errorPayload{Code: "internal_error", Message: "internal server error"}
}

// errCode keeps sentinel error strings as stable machine-readable codes.
func errCode(err error) string {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err.Error()
		}
		inner := u.Unwrap()
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}
