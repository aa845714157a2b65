// internal/session/policy.go
package session

import "time"

// State is one step of the interactive flow.
type State string

const (
	StateAwaitingSelection    State = "awaiting_selection"
	StateAwaitingCustomInput  State = "awaiting_custom_input"
	StatePreviewShown         State = "preview_shown"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting            State = "executing"
	StateSuccess              State = "terminal_success"
	StateFailure              State = "terminal_failure"
	StateCancelled            State = "terminal_cancelled"
	StateTimedOut             State = "terminal_timeout"
)

// IsTerminal reports whether the state ends the session.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailure, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// TimeoutPolicy names what an elapsed wait window means.
type TimeoutPolicy string

const (
	// FailClosed treats silence as abandonment: the session times out.
	FailClosed TimeoutPolicy = "fail_closed"
	// FailOpen treats silence as consent: the flow proceeds. Only the
	// confirmation window behaves this way, so the common case needs no
	// extra click; selection and custom input must stay fail-closed.
	FailOpen TimeoutPolicy = "fail_open"
)

// waitRule pairs a waiting state with its window and timeout policy. All
// timeout behavior in the session is enumerable from this one table.
type waitRule struct {
	Window time.Duration
	Policy TimeoutPolicy
}

var waitRules = map[State]waitRule{
	StateAwaitingSelection:    {Window: 60 * time.Second, Policy: FailClosed},
	StateAwaitingCustomInput:  {Window: 30 * time.Second, Policy: FailClosed},
	StateAwaitingConfirmation: {Window: 5 * time.Second, Policy: FailOpen},
}
