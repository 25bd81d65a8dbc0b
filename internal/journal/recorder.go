package journal

import (
	"context"
	"encoding/json"

	"github.com/winwintangelo/cheetah-autonomous-coding/internal/loop"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/nats"
)

// Response text in outcome events is truncated to keep journal entries
// bounded; full transcripts belong in the session log, not the journal.
const maxOutcomeText = 2000

// Recorder adapts a Store to the control loop's journal capability for one
// project.
type Recorder struct {
	store   *Store
	project string
}

// NewRecorder creates a Recorder scoped to the given project token.
func NewRecorder(store *Store, project string) *Recorder {
	return &Recorder{store: store, project: project}
}

// IterationStart records the start of an iteration.
func (r *Recorder) IterationStart(ctx context.Context, number int) error {
	meta, _ := json.Marshal(map[string]any{"number": number})
	return r.store.PublishEvent(ctx, Event{
		Project: r.project,
		Type:    nats.EventTypeIteration,
		Action:  "start",
		Meta:    meta,
	})
}

// IterationOutcome records the classified outcome of an iteration's session.
func (r *Recorder) IterationOutcome(ctx context.Context, number int, o loop.Outcome) error {
	meta, _ := json.Marshal(map[string]any{
		"number":  number,
		"outcome": o.Kind.String(),
		"error":   o.Err,
	})
	text := o.Text
	if len(text) > maxOutcomeText {
		text = text[:maxOutcomeText]
	}
	return r.store.PublishEvent(ctx, Event{
		Project: r.project,
		Type:    nats.EventTypeIteration,
		Action:  "outcome",
		Meta:    meta,
		Data:    text,
	})
}

// Snapshot records a fresh progress snapshot taken after an iteration.
func (r *Recorder) Snapshot(ctx context.Context, number, passing, total int) error {
	meta, _ := json.Marshal(map[string]any{
		"number":  number,
		"passing": passing,
		"total":   total,
	})
	return r.store.PublishEvent(ctx, Event{
		Project: r.project,
		Type:    nats.EventTypeProgress,
		Action:  "snapshot",
		Meta:    meta,
	})
}

// Terminated records the final termination reason for a run.
func (r *Recorder) Terminated(ctx context.Context, reason loop.TerminationReason) error {
	return r.store.PublishEvent(ctx, Event{
		Project: r.project,
		Type:    nats.EventTypeControl,
		Action:  "terminated",
		Data:    reason.String(),
	})
}
