package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	verificationdomain "github.com/kolektiva/kolektiva/internal/verification/domain"
)

type autoPayEnableRequest struct {
	gateProofRequest
	Timing string `json:"timing" binding:"required"`
}

type autoPayTimingRequest struct {
	gateProofRequest
	Timing string `json:"timing" binding:"required"`
}

type autoPayInstrumentRequest struct {
	gateProofRequest
	InstrumentToken string `json:"instrument_token" binding:"required"`
}

func groupIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("group_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) GetAutoPay(c *gin.Context) {
	userID, _ := currentUserID(c)
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}

	pref, err := s.autopaySvc.Get(c.Request.Context(), userID, groupID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"group_id":       pref.GroupID.String(),
		"enabled":        pref.Enabled,
		"timing":         pref.Timing,
		"has_instrument": pref.InstrumentToken != nil,
	})
}

func (s *Server) EnableAutoPay(c *gin.Context) {
	userID, _ := currentUserID(c)
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}
	var req autoPayEnableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ok = s.executeGated(c, req.gateProofRequest, verificationdomain.ActionEnableAutoPay, func(ctx context.Context) error {
		return s.autopaySvc.Enable(ctx, userID, groupID, autopaydomain.Timing(req.Timing))
	})
	if ok {
		c.JSON(http.StatusOK, gin.H{"status": "enabled"})
	}
}

func (s *Server) DisableAutoPay(c *gin.Context) {
	userID, _ := currentUserID(c)
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}
	var req gateProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ok = s.executeGated(c, req, verificationdomain.ActionDisableAutoPay, func(ctx context.Context) error {
		return s.autopaySvc.Disable(ctx, userID, groupID)
	})
	if ok {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
	}
}

func (s *Server) UpdateAutoPayTiming(c *gin.Context) {
	userID, _ := currentUserID(c)
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}
	var req autoPayTimingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ok = s.executeGated(c, req.gateProofRequest, verificationdomain.ActionUpdateTiming, func(ctx context.Context) error {
		return s.autopaySvc.UpdateTiming(ctx, userID, groupID, autopaydomain.Timing(req.Timing))
	})
	if ok {
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	}
}

func (s *Server) SetAutoPayInstrument(c *gin.Context) {
	userID, _ := currentUserID(c)
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}
	var req autoPayInstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ok = s.executeGated(c, req.gateProofRequest, verificationdomain.ActionAddInstrument, func(ctx context.Context) error {
		return s.autopaySvc.SetInstrument(ctx, userID, groupID, req.InstrumentToken)
	})
	if ok {
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	}
}

func (s *Server) RemoveAutoPayInstrument(c *gin.Context) {
	userID, _ := currentUserID(c)
	groupID, ok := groupIDParam(c)
	if !ok {
		return
	}
	var req gateProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ok = s.executeGated(c, req, verificationdomain.ActionRemoveInstrument, func(ctx context.Context) error {
		return s.autopaySvc.RemoveInstrument(ctx, userID, groupID)
	})
	if ok {
		c.JSON(http.StatusOK, gin.H{"status": "removed"})
	}
}
