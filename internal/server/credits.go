package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	creditdomain "github.com/stafflane/stafflane/internal/credit/domain"
)

func (s *Server) GetCreditBalance(c *gin.Context) {
	target, ok := s.resolveClientQuery(c)
	if !ok {
		return
	}

	resp, err := s.creditSvc.Balance(c.Request.Context(), orgID(c), target)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type eligibilityQuery struct {
	ClientID        string `form:"client_id"`
	DurationMinutes int    `form:"duration_minutes"`
}

func (s *Server) CheckEligibility(c *gin.Context) {
	var query eligibilityQuery
	if err := c.ShouldBindQuery(&query); err != nil || query.DurationMinutes <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	target, ok := s.resolveClientQuery(c)
	if !ok {
		return
	}

	resp, err := s.creditSvc.Eligibility(c.Request.Context(), creditdomain.EligibilityRequest{
		OrgID:           orgID(c),
		ClientID:        target,
		DurationMinutes: query.DurationMinutes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type deductCreditRequest struct {
	ClientID       *snowflake.ID `json:"client_id"`
	ConsultationID snowflake.ID  `json:"consultation_id"`
}

func (s *Server) DeductCredit(c *gin.Context) {
	var req deductCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConsultationID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	target, ok := s.resolveClient(c, req.ClientID)
	if !ok {
		return
	}

	if err := s.creditSvc.Deduct(c.Request.Context(), creditdomain.DeductRequest{
		OrgID:          orgID(c),
		ClientID:       target,
		ConsultationID: req.ConsultationID,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "credit.deduct", "consultation", req.ConsultationID.String())

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type useTrialRequest struct {
	ClientID *snowflake.ID `json:"client_id"`
}

func (s *Server) UseTrial(c *gin.Context) {
	var req useTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	target, ok := s.resolveClient(c, req.ClientID)
	if !ok {
		return
	}

	if err := s.creditSvc.UseTrial(c.Request.Context(), orgID(c), target); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// resolveClientQuery is resolveClient for query-string endpoints.
func (s *Server) resolveClientQuery(c *gin.Context) (snowflake.ID, bool) {
	var requested *snowflake.ID
	if raw := c.Query("client_id"); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return 0, false
		}
		requested = &id
	}

	return s.resolveClient(c, requested)
}
