package processor

import (
	"encoding/json"
	"errors"
	"strings"
)

// EventType enumerates the processor callbacks we act on.
type EventType string

const (
	EventChargeSucceeded EventType = "charge.succeeded"
	EventChargeFailed    EventType = "charge.failed"
	EventPayoutCompleted EventType = "payout.completed"
	EventPayoutFailed    EventType = "payout.failed"
)

// Event is a processor webhook callback. Reference matches the Result the
// processor returned when the charge or payout was created.
type Event struct {
	Type        EventType `json:"type"`
	Reference   string    `json:"reference"`
	FailureCode string    `json:"failure_code,omitempty"`
}

var (
	ErrInvalidEvent = errors.New("invalid_event")
	ErrEventIgnored = errors.New("event_ignored")
)

// ParseEvent decodes and validates a webhook payload. Event types we do not
// act on return ErrEventIgnored so the caller can acknowledge them without
// processing.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, ErrInvalidEvent
	}
	if strings.TrimSpace(ev.Reference) == "" {
		return nil, ErrInvalidEvent
	}
	switch ev.Type {
	case EventChargeSucceeded, EventChargeFailed, EventPayoutCompleted, EventPayoutFailed:
		return &ev, nil
	}
	return nil, ErrEventIgnored
}
