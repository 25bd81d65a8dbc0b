// Package agent defines the coding-agent capability consumed by the control
// loop, plus the concrete agent implementations. Each Agent value represents
// exactly one session: the loop creates a fresh handle per iteration and
// never reuses one.
package agent

import "context"

// Exchange status values reported by a single agent session.
const (
	StatusContinue = "continue"
	StatusDone     = "done"
	StatusError    = "error"
)

// SessionConfig is the immutable configuration shared by every session the
// loop creates during one run.
type SessionConfig struct {
	ProjectDir string // Project root the agent works in
	Model      string // Model identifier (e.g., anthropic/claude-sonnet-4)
	Sandbox    bool   // Provision a scratch sandbox dir per session
}

// Response is the raw result of one exchange. Ordinary provider failures are
// reported through StatusError rather than a Go error, so the loop never has
// to special-case them.
type Response struct {
	Status string // continue, done, or error
	Text   string // Response text (continue/done)
	Err    string // Error message (error status)
}

// Agent is a single-session handle on a coding agent.
//
// A handle moves through Created -> Active -> Closed. Start activates it and
// may perform per-session setup such as sandbox provisioning. RunSession is
// only valid while Active. Close releases the handle and is idempotent; it
// must run exactly once per session regardless of how the session ends.
type Agent interface {
	Start(ctx context.Context) error
	RunSession(ctx context.Context, prompt string) (Response, error)
	Close() error
}

// Lifecycle states shared by the agent implementations.
const (
	stateCreated = iota
	stateActive
	stateClosed
)

func stateName(s int) string {
	switch s {
	case stateCreated:
		return "created"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
