// Package loop implements the session control loop: it repeatedly runs
// coding-agent sessions against one project until every defined check
// passes, the iteration budget runs out, or the run is cancelled.
package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
)

const (
	// DefaultAutoContinueDelay is the fixed pause after a non-terminal
	// session before the next one starts.
	DefaultAutoContinueDelay = 3 * time.Second
	// DefaultPacingDelay is the short pause between sessions.
	DefaultPacingDelay = 1 * time.Second
)

// Config holds the per-run settings for a Loop.
type Config struct {
	ProjectDir        string
	MaxIterations     int // 0 = unlimited
	AutoContinueDelay time.Duration
	PacingDelay       time.Duration
}

// Deps are the collaborators a Loop drives. Agents, Prompts and Store are
// required; Journal and OnSnapshot are optional.
type Deps struct {
	Agents  Factory
	Prompts PromptSource
	Store   ProjectStore
	Journal Journal
	// OnSnapshot is called with each fresh progress snapshot, for
	// user-visible progress reporting.
	OnSnapshot func(passing, total int)
}

// Loop owns the iteration state and termination policy for one project run.
// A Loop drives sessions strictly sequentially: no two agent handles are
// ever active at once, and progress snapshots are always taken after the
// session that might have changed them.
type Loop struct {
	cfg    Config
	deps   Deps
	runner Runner
}

// New creates a Loop, filling in default delays and a no-op journal where
// needed.
func New(cfg Config, deps Deps) *Loop {
	if cfg.AutoContinueDelay <= 0 {
		cfg.AutoContinueDelay = DefaultAutoContinueDelay
	}
	if cfg.PacingDelay <= 0 {
		cfg.PacingDelay = DefaultPacingDelay
	}
	if deps.Journal == nil {
		deps.Journal = noopJournal{}
	}
	return &Loop{cfg: cfg, deps: deps}
}

// Run drives agent sessions until a termination reason is reached. Session
// errors are retried forever; only configuration and machinery failures
// (unreadable progress, journal write failures) return a non-nil error, in
// which case the returned reason is meaningless.
func (l *Loop) Run(ctx context.Context) (TerminationReason, error) {
	// The project phase is derived exactly once per run. It seeds the
	// first-run flag; the artifact is never re-checked mid-loop.
	firstRun := !l.deps.Store.ChecksArtifactExists(l.cfg.ProjectDir)
	if firstRun {
		logger.Info("Fresh project, seeding initial artifacts in %s", l.cfg.ProjectDir)
		if err := l.deps.Store.SeedInitialArtifacts(l.cfg.ProjectDir); err != nil {
			return 0, fmt.Errorf("seeding project artifacts: %w", err)
		}
	} else {
		logger.Info("Continuing existing project in %s", l.cfg.ProjectDir)
	}

	iteration := 0
	for {
		iteration++
		if l.cfg.MaxIterations > 0 && iteration > l.cfg.MaxIterations {
			logger.Info("Reached max iterations (%d)", l.cfg.MaxIterations)
			return l.finish(ctx, MaxIterationsReached)
		}

		// Exactly one prompt variant per iteration. The initializer is used
		// up by its first selection, whether or not the session succeeds;
		// otherwise a failing first session would retry the initializer
		// forever.
		var prompt string
		if firstRun {
			prompt = l.deps.Prompts.InitializerPrompt()
			firstRun = false
			fmt.Printf("\n=== Session #%d (initializer) ===\n", iteration)
		} else {
			prompt = l.deps.Prompts.ContinuationPrompt(l.cfg.ProjectDir, iteration)
			fmt.Printf("\n=== Session #%d ===\n", iteration)
		}

		if err := l.deps.Journal.IterationStart(ctx, iteration); err != nil {
			return 0, fmt.Errorf("recording iteration start: %w", err)
		}

		outcome, err := l.runSession(ctx, prompt)
		if err != nil {
			return 0, err
		}
		if ctx.Err() != nil {
			// Cancelled during the exchange. The handle is already released;
			// terminate without re-querying progress.
			return l.finish(ctx, Cancelled)
		}

		if err := l.deps.Journal.IterationOutcome(ctx, iteration, outcome); err != nil {
			return 0, fmt.Errorf("recording iteration outcome: %w", err)
		}

		// Completion is checked after every session, even errored ones: an
		// earlier session may already have finished the project before a
		// later transient failure.
		passing, total, err := l.deps.Store.CheckCounts(l.cfg.ProjectDir)
		if err != nil {
			return 0, fmt.Errorf("reading check counts: %w", err)
		}
		if err := l.deps.Journal.Snapshot(ctx, iteration, passing, total); err != nil {
			return 0, fmt.Errorf("recording progress snapshot: %w", err)
		}
		if l.deps.OnSnapshot != nil {
			l.deps.OnSnapshot(passing, total)
		}
		if total > 0 && passing == total {
			logger.Info("All checks passing (%d/%d)", passing, total)
			return l.finish(ctx, AllChecksPassing)
		}

		switch outcome.Kind {
		case OutcomeError:
			logger.Warn("Session #%d failed: %s", iteration, outcome.Err)
			fmt.Printf("Session error: %s\n", outcome.Err)
			fmt.Printf("Retrying with a fresh session in %s...\n", l.cfg.AutoContinueDelay)
		default:
			// Done is not trusted as a stop signal; it paces like Continue.
			fmt.Printf("Auto-continuing in %s...\n", l.cfg.AutoContinueDelay)
		}
		if err := sleep(ctx, l.cfg.AutoContinueDelay); err != nil {
			return l.finish(ctx, Cancelled)
		}

		if l.cfg.MaxIterations == 0 || iteration < l.cfg.MaxIterations {
			if err := sleep(ctx, l.cfg.PacingDelay); err != nil {
				return l.finish(ctx, Cancelled)
			}
		}
	}
}

// runSession acquires a fresh agent handle, runs one exchange, and releases
// the handle on every exit path. Acquisition failures are session errors,
// not fatal faults.
func (l *Loop) runSession(ctx context.Context, prompt string) (Outcome, error) {
	a, err := l.deps.Agents.NewSession()
	if err != nil {
		return Outcome{}, fmt.Errorf("creating agent session: %w", err)
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("Releasing agent handle: %v", cerr)
		}
	}()

	if err := a.Start(ctx); err != nil {
		return Outcome{Kind: OutcomeError, Err: fmt.Sprintf("starting agent session: %v", err)}, nil
	}
	return l.runner.RunOnce(ctx, a, prompt), nil
}

// finish records the termination and returns the reason. The record is
// best-effort: the run has already ended and the journal write must not mask
// the reason, so failures are only logged. WithoutCancel lets the final
// record land even when the run ended by cancellation.
func (l *Loop) finish(ctx context.Context, reason TerminationReason) (TerminationReason, error) {
	if err := l.deps.Journal.Terminated(context.WithoutCancel(ctx), reason); err != nil {
		logger.Warn("Recording termination: %v", err)
	}
	return reason, nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
