package loop

import (
	"context"
	"errors"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/agent"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/errs"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
)

// Runner executes exactly one agent exchange and classifies the result. It
// never propagates failures: transport errors, provider errors, and panics
// inside the agent all become error outcomes, so the loop has a single
// retry path.
type Runner struct{}

// RunOnce invokes the agent's single exchange with the prompt and maps the
// raw response to an Outcome. An explicit error status maps to OutcomeError;
// any other status maps to OutcomeContinue carrying the response text
// verbatim.
func (Runner) RunOnce(ctx context.Context, a agent.Agent, prompt string) Outcome {
	var resp agent.Response

	err := errs.Recover(func() error {
		var rerr error
		resp, rerr = a.RunSession(ctx, prompt)
		return rerr
	})
	if err != nil {
		var perr *errs.PanicError
		if errors.As(err, &perr) {
			logger.Error("Agent exchange panicked: %v\n%s", perr.Value, perr.StackTrace)
		}
		return Outcome{Kind: OutcomeError, Err: err.Error()}
	}

	switch resp.Status {
	case agent.StatusError:
		msg := resp.Err
		if msg == "" {
			msg = "unknown agent error"
		}
		return Outcome{Kind: OutcomeError, Err: msg}
	case agent.StatusDone:
		return Outcome{Kind: OutcomeDone, Text: resp.Text}
	default:
		return Outcome{Kind: OutcomeContinue, Text: resp.Text}
	}
}
