package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func obligationIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) GetObligation(c *gin.Context) {
	id, ok := obligationIDParam(c)
	if !ok {
		return
	}

	obligation, err := s.contributionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           obligation.ID.String(),
		"group_id":     obligation.GroupID.String(),
		"payer_id":     obligation.PayerID.String(),
		"recipient_id": obligation.RecipientID.String(),
		"amount":       obligation.Amount,
		"currency":     obligation.Currency,
		"due_date":     obligation.DueDate,
		"status":       obligation.Status,
		"origin":       obligation.Origin,
	})
}

// MarkObligationPaid is the payer's half of the manual settlement handshake.
func (s *Server) MarkObligationPaid(c *gin.Context) {
	userID, _ := currentUserID(c)
	id, ok := obligationIDParam(c)
	if !ok {
		return
	}

	if err := s.contributionSvc.MarkPaid(c.Request.Context(), id, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paid"})
}

// ConfirmObligation is the recipient's half; it settles the obligation.
func (s *Server) ConfirmObligation(c *gin.Context) {
	userID, _ := currentUserID(c)
	id, ok := obligationIDParam(c)
	if !ok {
		return
	}

	if err := s.contributionSvc.Confirm(c.Request.Context(), id, userID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

// GetStanding reports the caller's defaulter standing.
func (s *Server) GetStanding(c *gin.Context) {
	userID, _ := currentUserID(c)

	report, err := s.classifier.Check(c.Request.Context(), userID, 0)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"has_overdue":    report.HasOverdue,
		"overdue_count":  report.OverdueCount,
		"overdue_amount": report.OverdueAmount,
	})
}
