package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/stafflane/stafflane/internal/billing/domain"
	"github.com/stafflane/stafflane/pkg/db/pagination"
	"go.uber.org/zap"
)

type createPaymentIntentRequest struct {
	ClientID        *snowflake.ID `json:"client_id"`
	ConsultantID    *snowflake.ID `json:"consultant_id"`
	PackageID       *snowflake.ID `json:"package_id"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	PaymentMethodID string        `json:"payment_method_id"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	target, ok := s.resolveClient(c, req.ClientID)
	if !ok {
		return
	}

	resp, err := s.billingSvc.CreateIntent(c.Request.Context(), billingdomain.CreateIntentRequest{
		OrgID:           orgID(c),
		ClientID:        target,
		ConsultantID:    req.ConsultantID,
		PackageID:       req.PackageID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PaymentIntentID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	confirm := billingdomain.ConfirmRequest{PaymentIntentID: req.PaymentIntentID}
	if !isAdmin(c) {
		id, ok := clientID(c)
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		confirm.RequestedBy = &id
	}

	resp, err := s.billingSvc.Confirm(c.Request.Context(), confirm)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetTransaction(c *gin.Context) {
	req := billingdomain.GetTransactionRequest{
		OrgID:         orgID(c),
		TransactionID: c.Param("transaction_id"),
		Admin:         isAdmin(c),
	}
	if !req.Admin {
		id, ok := clientID(c)
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		req.RequestedBy = &id
	}

	txn, err := s.billingSvc.Get(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

type listHistoryQuery struct {
	ClientID string `form:"client_id"`
	Status   string `form:"status"`
	From     string `form:"from"`
	To       string `form:"to"`
	pagination.Pagination
}

func (s *Server) ListPaymentHistory(c *gin.Context) {
	var query listHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var target snowflake.ID
	if isAdmin(c) && query.ClientID != "" {
		id, err := snowflake.ParseString(query.ClientID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		target = id
	} else {
		id, ok := clientID(c)
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}
		target = id
	}

	req := billingdomain.ListHistoryRequest{
		OrgID:    orgID(c),
		ClientID: target,
		Status:   query.Status,
		Page:     query.Pagination,
	}

	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.From = &from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.To = &to
	}

	resp, err := s.billingSvc.ListHistory(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type refundPaymentRequest struct {
	TransactionID string `json:"transaction_id"`
	Amount        *int64 `json:"amount"`
	Reason        string `json:"reason"`
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req refundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TransactionID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.billingSvc.Refund(c.Request.Context(), billingdomain.RefundRequest{
		OrgID:         orgID(c),
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Reason:        req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "payment.refund", "transaction", req.TransactionID)

	c.JSON(http.StatusOK, resp)
}

// resolveClient picks the client a payment call acts on: admins may act on
// any client in the org, everyone else only on themselves.
func (s *Server) resolveClient(c *gin.Context, requested *snowflake.ID) (snowflake.ID, bool) {
	if isAdmin(c) && requested != nil {
		return *requested, true
	}

	id, ok := clientID(c)
	if !ok {
		AbortWithError(c, ErrForbidden)
		return 0, false
	}

	if requested != nil && *requested != id {
		AbortWithError(c, ErrForbidden)
		return 0, false
	}

	return id, true
}

func (s *Server) audit(c *gin.Context, action, targetType, targetID string) {
	org := orgID(c)
	actorType := "client"
	if isAdmin(c) {
		actorType = "admin"
	}

	var actorID *string
	if id, ok := clientID(c); ok {
		v := id.String()
		actorID = &v
	}

	if err := s.auditSvc.AuditLog(c.Request.Context(), &org, actorType, actorID, action, targetType, &targetID, nil); err != nil {
		s.log.Warn("audit log failed", zap.Error(err))
	}
}
