package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	payoutdomain "github.com/stafflane/stafflane/internal/payout/domain"
)

type schedulePayoutRequest struct {
	ConsultantID snowflake.ID `json:"consultant_id"`
	PayoutDate   string       `json:"payout_date"`
}

func (s *Server) SchedulePayout(c *gin.Context) {
	var req schedulePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConsultantID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	schedule := payoutdomain.ScheduleRequest{
		OrgID:        orgID(c),
		ConsultantID: req.ConsultantID,
	}
	if req.PayoutDate != "" {
		date, err := time.Parse("2006-01-02", req.PayoutDate)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		schedule.PayoutDate = date
	}

	resp, err := s.payoutSvc.Schedule(c.Request.Context(), schedule)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if resp.Scheduled && resp.BatchID != nil {
		s.audit(c, "payout.schedule", "payout_batch", resp.BatchID.String())
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetPayoutBatch(c *gin.Context) {
	batchID, err := snowflake.ParseString(c.Param("batch_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	batch, err := s.payoutSvc.GetBatch(c.Request.Context(), orgID(c), batchID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}
