// Package state persists build history and example content hashes between
// builds, backing incremental rebuilds and the daemon's build log.
package state

import (
	"context"
	"time"
)

// Event is a single recorded build event.
type Event struct {
	ID        int64
	BuildID   string
	Type      string
	Timestamp time.Time
	Payload   []byte
}

// Well-known event types appended by the pipeline.
const (
	EventBuildStarted   = "build.started"
	EventStageCompleted = "stage.completed"
	EventBuildFinished  = "build.finished"
)

// Store is the persistence interface used by the pipeline and daemon.
type Store interface {
	// AppendEvent records a build event.
	AppendEvent(ctx context.Context, buildID, eventType string, payload []byte) error
	// EventsByBuild returns all events for a build in append order.
	EventsByBuild(ctx context.Context, buildID string) ([]Event, error)
	// EventsInRange returns events whose timestamp falls in [start, end].
	EventsInRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// ExampleHash returns the stored content hash for a slug ("" if unknown).
	ExampleHash(ctx context.Context, slug string) (string, error)
	// SetExampleHash upserts the content hash for a slug.
	SetExampleHash(ctx context.Context, slug, hash string) error

	Close() error
}
