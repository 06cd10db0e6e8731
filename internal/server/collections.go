package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	groupdomain "github.com/kolektiva/kolektiva/internal/group/domain"
	"github.com/kolektiva/kolektiva/internal/processor"
	"go.uber.org/zap"
)

// TriggerCollection runs one sweep for a group type on demand and returns
// what it did.
func (s *Server) TriggerCollection(c *gin.Context) {
	groupType := groupdomain.GroupType(c.Param("group_type"))
	switch groupType {
	case groupdomain.GroupTypeBirthday, groupdomain.GroupTypeSubscription, groupdomain.GroupTypeGeneral:
	default:
		AbortWithError(c, groupdomain.ErrInvalidType)
		return
	}

	result, err := s.scheduler.RunGroupType(c.Request.Context(), groupType)
	if err != nil {
		s.log.Warn("on-demand collection run finished with errors",
			zap.String("group_type", string(groupType)), zap.Error(err))
	}
	c.JSON(http.StatusOK, result)
}

// ProcessorWebhook ingests async charge and payout results. Duplicate
// deliveries are no-ops; unknown event types are acknowledged so the
// processor stops redelivering them.
func (s *Server) ProcessorWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	event, err := processor.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, processor.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case processor.EventChargeSucceeded:
		attempt, findErr := s.executor.AttemptByRef(ctx, event.Reference)
		if findErr != nil {
			err = findErr
		} else {
			err = s.executor.FinalizeChargeSuccess(ctx, attempt.ID, event.Reference)
		}
	case processor.EventChargeFailed:
		err = s.executor.FinalizeChargeFailure(ctx, event.Reference, event.FailureCode)
	case processor.EventPayoutCompleted:
		err = s.withdrawalSvc.FinalizePayout(ctx, event.Reference, true, "")
	case processor.EventPayoutFailed:
		err = s.withdrawalSvc.FinalizePayout(ctx, event.Reference, false, event.FailureCode)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
