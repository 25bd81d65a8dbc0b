package loop

import "fmt"

// OutcomeKind tags the result of a single agent exchange.
type OutcomeKind int

const (
	// OutcomeContinue means the agent finished its exchange and the loop
	// should keep going.
	OutcomeContinue OutcomeKind = iota
	// OutcomeDone means the agent reported it considers the work finished.
	// The loop does not trust this; completion is decided by the checks
	// artifact alone.
	OutcomeDone
	// OutcomeError means the exchange failed. Never fatal: the loop retries
	// with a brand-new session.
	OutcomeError
)

// String returns the outcome kind name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinue:
		return "continue"
	case OutcomeDone:
		return "done"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Outcome is the classified result of one session. Produced by Runner,
// consumed by Loop, never persisted beyond the journal.
type Outcome struct {
	Kind OutcomeKind
	Text string // response text (continue/done)
	Err  string // error message (error)
}

// TerminationReason is the single reason a run ends.
type TerminationReason int

const (
	// MaxIterationsReached means the iteration budget was exhausted.
	MaxIterationsReached TerminationReason = iota
	// AllChecksPassing means every defined check passes; the project is
	// complete.
	AllChecksPassing
	// Cancelled means an external cancellation signal was observed.
	Cancelled
)

// String returns the reason name.
func (r TerminationReason) String() string {
	switch r {
	case MaxIterationsReached:
		return "max_iterations_reached"
	case AllChecksPassing:
		return "all_checks_passing"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Message returns the user-facing final message for the reason. Each reason
// has a distinct message.
func (r TerminationReason) Message() string {
	switch r {
	case MaxIterationsReached:
		return "Reached the iteration limit. Run again to continue from where the agent left off."
	case AllChecksPassing:
		return "All checks passing - project complete."
	case Cancelled:
		return "Interrupted. Run the same command again to resume."
	default:
		return "Stopped."
	}
}
