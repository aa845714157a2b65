// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorlin/swapcord/internal/swap"
	"github.com/quorlin/swapcord/internal/transport"
)

// Direction distinguishes the buy and sell flows.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Flow supplies the direction-specific pieces of a session: the preset menu,
// custom-input validation, preview building, and pipeline execution. The
// session owns every user-facing state transition; the flow owns the swap.
type Flow interface {
	Direction() Direction
	Presets() []float64
	// ValidateCustom rejects out-of-range custom input. The returned error's
	// text is shown to the user verbatim.
	ValidateCustom(value float64) error
	Preview(ctx context.Context, value float64) (string, error)
	Execute(ctx context.Context, value float64) swap.Result
}

// waitOutcome is what ends one waiting state: a user event or the timer.
type waitOutcome struct {
	event    *transport.Event
	timedOut bool
}

// pendingWait races the expected user event against its timeout. The
// acknowledged flag guarantees that once either side fires, the other is a
// no-op: a late click after a timeout must never double-handle.
type pendingWait struct {
	mu           sync.Mutex
	acknowledged bool
	done         chan waitOutcome
}

func (w *pendingWait) resolve(o waitOutcome) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.acknowledged {
		return false
	}
	w.acknowledged = true
	w.done <- o
	return true
}

// Session is one user-initiated buy or sell interaction. Sessions are
// independent: a second invocation by the same user runs concurrently with
// no cross-session locking.
type Session struct {
	ID     string
	UserID string

	flow   Flow
	poster transport.Poster
	clock  Clock
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	expiresAt time.Time
	wait      *pendingWait
	timer     Timer
}

func New(userID string, flow Flow, poster transport.Poster, clock Clock, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		UserID: userID,
		flow:   flow,
		poster: poster,
		clock:  clock,
		logger: logger.Named("session").With(
			zap.String("session_id", id),
			zap.String("user_id", userID),
			zap.String("direction", string(flow.Direction()))),
		state: StateAwaitingSelection,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.logger.Debug("state transition", zap.String("state", string(state)))
}

// Deliver hands a user event to the session. Events irrelevant to the
// current waiting state are ignored. Returns whether the event was consumed.
func (s *Session) Deliver(event transport.Event) bool {
	s.mu.Lock()
	wait := s.wait
	state := s.state
	s.mu.Unlock()

	if wait == nil || !eventRelevant(state, event.Kind) {
		return false
	}
	return wait.resolve(waitOutcome{event: &event})
}

func eventRelevant(state State, kind transport.EventKind) bool {
	switch state {
	case StateAwaitingSelection:
		return kind == transport.EventPreset || kind == transport.EventCustom ||
			kind == transport.EventCancel
	case StateAwaitingCustomInput:
		return kind == transport.EventMessage || kind == transport.EventCancel
	case StateAwaitingConfirmation:
		return kind == transport.EventConfirm || kind == transport.EventCancel
	}
	return false
}

// awaitEvent blocks in the given waiting state until a relevant event or the
// state's timeout, per the policy table.
func (s *Session) awaitEvent(state State) waitOutcome {
	rule := waitRules[state]
	wait := &pendingWait{done: make(chan waitOutcome, 1)}

	s.mu.Lock()
	s.state = state
	s.wait = wait
	s.expiresAt = s.clock.Now().Add(rule.Window)
	s.mu.Unlock()

	timer := s.clock.AfterFunc(rule.Window, func() {
		wait.resolve(waitOutcome{timedOut: true})
	})

	s.mu.Lock()
	s.timer = timer
	s.mu.Unlock()

	outcome := <-wait.done

	s.mu.Lock()
	s.wait = nil
	s.timer = nil
	s.mu.Unlock()
	timer.Stop()

	return outcome
}

// Run drives the session to a terminal state and returns it. Every terminal
// state posts exactly one final message and releases all timers.
func (s *Session) Run(ctx context.Context) State {
	if err := s.poster.Post(ctx, s.menuText()); err != nil {
		s.logger.Error("failed to post menu", zap.Error(err))
		return s.finish(ctx, StateFailure, "Something went wrong, please try again later.")
	}

	value, next := s.selectValue(ctx)
	if next != "" {
		return next
	}

	previewText, err := s.flow.Preview(ctx, value)
	if err != nil {
		s.logger.Error("preview failed", zap.Error(err))
		return s.finish(ctx, StateFailure, "Could not fetch a quote, please try again later.")
	}

	s.setState(StatePreviewShown)
	rule := waitRules[StateAwaitingConfirmation]
	confirmNote := fmt.Sprintf("%s\n\nExecuting in %.0fs. Press Cancel to abort.",
		previewText, rule.Window.Seconds())
	if err := s.poster.Post(ctx, confirmNote); err != nil {
		s.logger.Error("failed to post preview", zap.Error(err))
		return s.finish(ctx, StateFailure, "Something went wrong, please try again later.")
	}

	outcome := s.awaitEvent(StateAwaitingConfirmation)
	if outcome.event != nil && outcome.event.Kind == transport.EventCancel {
		return s.finish(ctx, StateCancelled, "Swap cancelled.")
	}
	// explicit confirm and elapsed window both proceed: the confirmation
	// step fails open, unlike selection and custom input

	s.setState(StateExecuting)
	result := s.flow.Execute(ctx, value)
	return s.finishWithResult(ctx, result)
}

// selectValue runs the selection (and optional custom input) steps. A
// non-empty returned state means the session already terminated.
func (s *Session) selectValue(ctx context.Context) (float64, State) {
	outcome := s.awaitEvent(StateAwaitingSelection)
	switch {
	case outcome.timedOut:
		return 0, s.finish(ctx, StateTimedOut, "Selection timed out.")
	case outcome.event.Kind == transport.EventCancel:
		return 0, s.finish(ctx, StateCancelled, "Swap cancelled.")
	case outcome.event.Kind == transport.EventPreset:
		presets := s.flow.Presets()
		if outcome.event.Index < 0 || outcome.event.Index >= len(presets) {
			return 0, s.finish(ctx, StateFailure, "Something went wrong, please try again later.")
		}
		return presets[outcome.event.Index], ""
	}

	// custom input: the next plain message is parsed as a number; anything
	// invalid cancels with an explanation, it does not re-prompt
	if err := s.poster.Post(ctx, s.customPrompt()); err != nil {
		s.logger.Error("failed to post custom prompt", zap.Error(err))
		return 0, s.finish(ctx, StateFailure, "Something went wrong, please try again later.")
	}

	outcome = s.awaitEvent(StateAwaitingCustomInput)
	switch {
	case outcome.timedOut:
		return 0, s.finish(ctx, StateTimedOut, "Input timed out.")
	case outcome.event.Kind == transport.EventCancel:
		return 0, s.finish(ctx, StateCancelled, "Swap cancelled.")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(outcome.event.Content), 64)
	if err != nil {
		return 0, s.finish(ctx, StateCancelled,
			fmt.Sprintf("Invalid %s: %q is not a number.", s.noun(), outcome.event.Content))
	}
	if err := s.flow.ValidateCustom(value); err != nil {
		return 0, s.finish(ctx, StateCancelled, err.Error())
	}
	return value, ""
}

func (s *Session) finishWithResult(ctx context.Context, result swap.Result) State {
	if result.Success {
		return s.finish(ctx, StateSuccess,
			fmt.Sprintf("Swap complete.\nSignature: %s", result.Signature))
	}
	if result.Signature != "" {
		// funds may have moved; never report this as "nothing happened"
		return s.finish(ctx, StateFailure,
			fmt.Sprintf("%s\nSignature: %s\nCheck a block explorer before retrying.",
				result.TransactionMessage, result.Signature))
	}
	if result.TransactionMessage != "" {
		return s.finish(ctx, StateFailure, result.TransactionMessage)
	}
	return s.finish(ctx, StateFailure, "Swap failed, please try again later.")
}

// finish performs the single terminal transition: one final message, timers
// released.
func (s *Session) finish(ctx context.Context, state State, text string) State {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.wait = nil
	s.state = state
	s.mu.Unlock()

	s.logger.Info("session finished", zap.String("state", string(state)))
	if err := s.poster.Post(ctx, text); err != nil {
		s.logger.Error("failed to post final message", zap.Error(err))
	}
	return state
}

func (s *Session) menuText() string {
	var b strings.Builder
	if s.flow.Direction() == Buy {
		b.WriteString("Select buy amount (SOL):")
	} else {
		b.WriteString("Select sell percentage:")
	}
	for _, preset := range s.flow.Presets() {
		fmt.Fprintf(&b, " [%s%s]", strconv.FormatFloat(preset, 'f', -1, 64), s.unitSuffix())
	}
	b.WriteString(" [Custom] [Cancel]")
	return b.String()
}

func (s *Session) customPrompt() string {
	return fmt.Sprintf("Enter a custom %s:", s.noun())
}

func (s *Session) noun() string {
	if s.flow.Direction() == Buy {
		return "amount"
	}
	return "percentage"
}

func (s *Session) unitSuffix() string {
	if s.flow.Direction() == Sell {
		return "%"
	}
	return ""
}
