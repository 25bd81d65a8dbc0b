// Package journal is the append-only run journal: every iteration start,
// session outcome, progress snapshot, and termination is stored as an event
// in the embedded JetStream stream, and history is rebuilt by reducing the
// event log.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/xid"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/logger"
	"github.com/winwintangelo/cheetah-autonomous-coding/internal/nats"
)

// Event is one record in the journal. Events are published to subjects
// following the pattern cheetah.{project}.{type}.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Project   string          `json:"project"`
	Type      string          `json:"type"`   // iteration, progress, control
	Action    string          `json:"action"` // start, outcome, snapshot, terminated
	Meta      json.RawMessage `json:"meta"`
	Data      string          `json:"data"`
}

// Store publishes and replays journal events.
type Store struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewStore creates a Store over the given JetStream context and stream.
func NewStore(js jetstream.JetStream, stream jetstream.Stream) *Store {
	return &Store{js: js, stream: stream}
}

// PublishEvent appends an event to the journal.
func (s *Store) PublishEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = xid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	subject := nats.SubjectForEvent(event.Project, event.Type)
	logger.Debug("Publishing event: project=%s type=%s action=%s", event.Project, event.Type, event.Action)

	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing event to %s: %w", subject, err)
	}
	return nil
}

// IterationRecord is the reduced view of one iteration.
type IterationRecord struct {
	Number    int       `json:"number"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Outcome   string    `json:"outcome,omitempty"` // continue, done, error
	Error     string    `json:"error,omitempty"`
	Passing   int       `json:"passing"`
	Total     int       `json:"total"`
}

// History is a project's full run history, rebuilt from the event log.
type History struct {
	Project    string             `json:"project"`
	Iterations []*IterationRecord `json:"iterations"`
	Terminated string             `json:"terminated,omitempty"` // last termination reason
}

// apply reduces one event into the history.
func (h *History) apply(event Event) {
	switch event.Type {
	case nats.EventTypeIteration:
		h.applyIteration(event)
	case nats.EventTypeProgress:
		h.applyProgress(event)
	case nats.EventTypeControl:
		if event.Action == "terminated" {
			h.Terminated = event.Data
		}
	}
}

func (h *History) find(number int) *IterationRecord {
	for _, rec := range h.Iterations {
		if rec.Number == number {
			return rec
		}
	}
	return nil
}

func (h *History) applyIteration(event Event) {
	var meta struct {
		Number  int    `json:"number"`
		Outcome string `json:"outcome"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(event.Meta, &meta)

	switch event.Action {
	case "start":
		h.Iterations = append(h.Iterations, &IterationRecord{
			Number:    meta.Number,
			StartedAt: event.Timestamp,
		})
	case "outcome":
		if rec := h.find(meta.Number); rec != nil {
			rec.Outcome = meta.Outcome
			rec.Error = meta.Error
			rec.EndedAt = event.Timestamp
		}
	}
}

func (h *History) applyProgress(event Event) {
	var meta struct {
		Number  int `json:"number"`
		Passing int `json:"passing"`
		Total   int `json:"total"`
	}
	_ = json.Unmarshal(event.Meta, &meta)

	if event.Action == "snapshot" {
		if rec := h.find(meta.Number); rec != nil {
			rec.Passing = meta.Passing
			rec.Total = meta.Total
		}
	}
}

// LoadHistory rebuilds a project's history by reading and reducing all of
// its events.
func (s *Store) LoadHistory(ctx context.Context, project string) (*History, error) {
	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: nats.SubjectForProject(project),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer: %w", err)
	}

	history := &History{Project: project}

	const batchSize = 1000
	for {
		msgs, err := consumer.FetchNoWait(batchSize)
		if err != nil {
			break
		}

		msgCount := 0
		for msg := range msgs.Messages() {
			msgCount++
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				logger.Warn("Skipping malformed journal event: %v", err)
				_ = msg.Ack()
				continue
			}
			history.apply(event)
			_ = msg.Ack()
		}

		if msgCount < batchSize {
			break
		}
	}

	return history, nil
}
