package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	verificationdomain "github.com/kolektiva/kolektiva/internal/verification/domain"
	"go.uber.org/zap"
)

type gatePasswordRequest struct {
	Password string `json:"password" binding:"required"`
	Action   string `json:"action" binding:"required"`
}

type gateCodeRequest struct {
	Proof  string `json:"proof" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// gateProofRequest rides along on every sensitive mutation body.
type gateProofRequest struct {
	Proof string `json:"proof" binding:"required"`
	Code  string `json:"code"`
}

// GateVerifyPassword is step one of the handshake: password in, short-lived
// proof token out.
func (s *Server) GateVerifyPassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if !s.allowGateAttempt(c, userID.String()) {
		return
	}

	var req gatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	proof, err := s.gateSvc.VerifyPassword(c.Request.Context(), userID,
		req.Password, verificationdomain.Action(req.Action))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proof": proof})
}

// GateRequestCode is step two: a valid proof gets a one-time code dispatched
// through the caller's verification method.
func (s *Server) GateRequestCode(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if !s.allowGateAttempt(c, userID.String()) {
		return
	}

	var req gateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.gateSvc.RequestCode(c.Request.Context(), userID, req.Proof,
		verificationdomain.Action(req.Action))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// executeGated runs fn behind step three of the handshake and reports
// whether it succeeded; the caller writes the success response.
func (s *Server) executeGated(c *gin.Context, gate gateProofRequest, action verificationdomain.Action, fn func(ctx context.Context) error) bool {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return false
	}
	if !s.allowGateAttempt(c, userID.String()) {
		return false
	}

	err := s.gateSvc.Execute(c.Request.Context(), userID, gate.Proof, gate.Code, action, fn)
	if err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}

func (s *Server) allowGateAttempt(c *gin.Context, userID string) bool {
	allowed, err := s.gateLimiter.AllowAttempt(c.Request.Context(), userID)
	if err != nil {
		s.log.Warn("gate rate limiter unavailable", zap.Error(err))
	}
	if !allowed {
		AbortWithError(c, ErrTooManyTries)
		return false
	}
	return true
}
