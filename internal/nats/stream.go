package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "cheetah_events"

// Event types recorded in the run journal.
const (
	EventTypeIteration = "iteration"
	EventTypeProgress  = "progress"
	EventTypeControl   = "control"
)

// SubjectForProject returns the wildcard subject for all of a project's
// events. Example: "cheetah.myproject.>"
func SubjectForProject(project string) string {
	return fmt.Sprintf("cheetah.%s.>", project)
}

// SubjectForEvent returns the subject for one event type in a project.
// Example: "cheetah.myproject.iteration"
func SubjectForEvent(project, eventType string) string {
	return fmt.Sprintf("cheetah.%s.%s", project, eventType)
}

// SetupStream creates or updates the JetStream stream capturing all journal
// events, with 30-day retention.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"cheetah.>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
}
