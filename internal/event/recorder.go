// Package event provides lifecycle event recording for the engine. Events
// are fanned out as activity entries via the activity.Store interface, then
// published to the in-process event bus for downstream consumers.
package event

import (
	"context"

	"github.com/matthewbaird/outbreak/internal/activity"
)

// Recorder writes domain events to the activity store.
type Recorder interface {
	Record(ctx context.Context, evt DomainEvent) error
}

// Publisher sends domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, evt DomainEvent)
}

// ActivityRecorder implements Recorder by fanning out a DomainEvent into
// one activity entry per affected entity, then writing via activity.Store.
// If a Publisher is set, the event is also published to the event bus
// after the store write succeeds.
type ActivityRecorder struct {
	store activity.Store
	bus   Publisher
}

// NewActivityRecorder creates a new ActivityRecorder backed by the given store.
func NewActivityRecorder(store activity.Store) *ActivityRecorder {
	return &ActivityRecorder{store: store}
}

// SetPublisher attaches an event bus. Events are published after store writes.
func (r *ActivityRecorder) SetPublisher(p Publisher) {
	r.bus = p
}

// Record fans out a DomainEvent into activity entries, writes them, and
// publishes to the event bus. References without an id are not indexed.
func (r *ActivityRecorder) Record(ctx context.Context, evt DomainEvent) error {
	entries := make([]activity.Entry, 0, len(evt.AffectedEntities))
	for _, ref := range evt.AffectedEntities {
		if ref.EntityID == "" {
			continue
		}
		entries = append(entries, activity.Entry{
			EventID:           evt.ID,
			EventType:         evt.EventType,
			OccurredAt:        evt.OccurredAt,
			IndexedEntityType: ref.EntityType,
			IndexedEntityID:   ref.EntityID,
			EntityRole:        ref.Role,
			SourceRefs:        evt.AffectedEntities,
			Summary:           evt.Summary,
			Category:          evt.Category,
			Weight:            evt.Weight,
			Payload:           evt.Payload,
		})
	}
	if err := r.store.WriteEntries(ctx, entries); err != nil {
		return err
	}

	if r.bus != nil {
		r.bus.Publish(ctx, evt)
	}
	return nil
}
