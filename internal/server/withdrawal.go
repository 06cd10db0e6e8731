package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	verificationdomain "github.com/kolektiva/kolektiva/internal/verification/domain"
	withdrawaldomain "github.com/kolektiva/kolektiva/internal/withdrawal/domain"
	"github.com/kolektiva/kolektiva/pkg/db/pagination"
)

type withdrawalRequestBody struct {
	gateProofRequest
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

func (s *Server) GetWalletBalance(c *gin.Context) {
	userID, _ := currentUserID(c)
	currency := strings.ToUpper(strings.TrimSpace(c.Query("currency")))
	if currency == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.walletSvc.Balance(c.Request.Context(), userID, currency)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"currency": currency,
		"balance":  balance,
	})
}

// RequestWithdrawal is gate-wrapped: the mutation only runs after the full
// password, proof and code handshake.
func (s *Server) RequestWithdrawal(c *gin.Context) {
	userID, _ := currentUserID(c)
	var req withdrawalRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var created *withdrawaldomain.WithdrawalRequest
	ok := s.executeGated(c, req.gateProofRequest, verificationdomain.ActionWithdraw, func(ctx context.Context) error {
		request, err := s.withdrawalSvc.Request(ctx, userID, req.Amount, strings.ToUpper(req.Currency))
		if err != nil {
			return err
		}
		created = request
		return nil
	})
	if ok {
		c.JSON(http.StatusCreated, withdrawalJSON(created))
	}
}

func (s *Server) ListWithdrawals(c *gin.Context) {
	userID, _ := currentUserID(c)

	var query pagination.Query
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	cursorID, err := pagination.DecodeToken(query.PageToken)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	var before snowflake.ID
	if cursorID != "" {
		before, err = snowflake.ParseString(cursorID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	limit := query.Limit()
	requests, err := s.withdrawalSvc.ListByUser(c.Request.Context(), userID, before, limit+1)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	requests, page := pagination.Trim(requests, limit, func(r withdrawaldomain.WithdrawalRequest) string {
		return r.ID.String()
	})

	out := make([]gin.H, 0, len(requests))
	for _, r := range requests {
		out = append(out, withdrawalJSON(&r))
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": out, "page": page})
}

func (s *Server) GetWithdrawal(c *gin.Context) {
	userID, _ := currentUserID(c)
	id, ok := obligationIDParam(c)
	if !ok {
		return
	}

	request, err := s.withdrawalSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if request.UserID != userID {
		AbortWithError(c, withdrawaldomain.ErrRequestNotFound)
		return
	}
	c.JSON(http.StatusOK, withdrawalJSON(request))
}

func withdrawalJSON(r *withdrawaldomain.WithdrawalRequest) gin.H {
	return gin.H{
		"id":          r.ID.String(),
		"amount":      r.Amount,
		"currency":    r.Currency,
		"status":      r.Status,
		"eligible_at": r.EligibleAt,
		"created_at":  r.CreatedAt,
	}
}
