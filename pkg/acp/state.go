package acp

import "fmt"

// Action is an operation on a checkout session
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// TransitionError reports an action the session state machine does not allow
type TransitionError struct {
	SessionID string
	From      Status
	Action    Action
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "(none)"
	}
	if e.SessionID != "" {
		return fmt.Sprintf("acp: cannot %s session %s in status %s", e.Action, e.SessionID, from)
	}
	return fmt.Sprintf("acp: cannot %s session in status %s", e.Action, from)
}

// CheckTransition reports whether action is allowed from status from. The
// empty status means the session does not exist yet.
func CheckTransition(from Status, action Action) error {
	allowed := false
	switch action {
	case ActionCreate:
		allowed = from == ""
	case ActionUpdate, ActionCancel:
		allowed = from == StatusNotReadyForPayment || from == StatusReadyForPayment
	case ActionComplete:
		allowed = from == StatusReadyForPayment
	}
	if !allowed {
		return &TransitionError{From: from, Action: action}
	}
	return nil
}

// StatusAfterUpdate returns the status a session moves to once its address is known
func StatusAfterUpdate(hasAddress bool) Status {
	if hasAddress {
		return StatusReadyForPayment
	}
	return StatusNotReadyForPayment
}
