package loop

import (
	"context"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/agent"
)

// Factory produces a fresh agent handle for each iteration. Handles are
// never reused across iterations.
type Factory interface {
	NewSession() (agent.Agent, error)
}

// PromptSource supplies the two prompt variants the loop chooses between.
type PromptSource interface {
	InitializerPrompt() string
	ContinuationPrompt(projectDir string, iteration int) string
}

// ProjectStore reports project progress and seeds fresh projects. All reads
// must be side-effect-free and idempotent.
type ProjectStore interface {
	// ChecksArtifactExists reports whether the checks artifact is present.
	// Its absence is the sole signal for a fresh project.
	ChecksArtifactExists(projectDir string) bool
	// CheckCounts returns (passing, total). total == 0 means no checks are
	// defined yet. An unreadable artifact is an error and fatal to the loop.
	CheckCounts(projectDir string) (passing, total int, err error)
	// SeedInitialArtifacts prepares a fresh project directory. Invoked once,
	// only when ChecksArtifactExists is false, before the first session.
	SeedInitialArtifacts(projectDir string) error
}

// Journal records the run's event history. Implementations must tolerate
// being called once per iteration; failures are fatal to the loop except for
// the final Terminated record.
type Journal interface {
	IterationStart(ctx context.Context, number int) error
	IterationOutcome(ctx context.Context, number int, o Outcome) error
	Snapshot(ctx context.Context, number, passing, total int) error
	Terminated(ctx context.Context, reason TerminationReason) error
}

// noopJournal is used when no journal is wired.
type noopJournal struct{}

func (noopJournal) IterationStart(context.Context, int) error            { return nil }
func (noopJournal) IterationOutcome(context.Context, int, Outcome) error { return nil }
func (noopJournal) Snapshot(context.Context, int, int, int) error        { return nil }
func (noopJournal) Terminated(context.Context, TerminationReason) error  { return nil }
