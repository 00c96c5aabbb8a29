package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a file run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

// JobEvent describes a finished file run. JobID is uuid.Nil for duplicates,
// which never create a job.
type JobEvent struct {
	JobID         uuid.UUID     `json:"jobId"`
	Integration   string        `json:"integration"`
	PlatformID    int           `json:"platformId"`
	FilePath      string        `json:"filePath"`
	FileHash      string        `json:"fileHash"`
	Outcome       Outcome       `json:"outcome"`
	TotalRows     int           `json:"totalRows"`
	ProcessedRows int           `json:"processedRows"`
	InsertedRows  int           `json:"insertedRows"`
	ErrorRows     int           `json:"errorRows"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"durationNs"`
	FinishedAt    time.Time     `json:"finishedAt"`
	Trigger       Trigger       `json:"trigger"`
}

// Observer is told about every finished run. Implementations must not block
// for long; ingestion waits for them.
type Observer interface {
	JobFinished(ctx context.Context, ev JobEvent)
}

// Observers fans an event out to each observer in order.
type Observers []Observer

// JobFinished implements Observer.
func (o Observers) JobFinished(ctx context.Context, ev JobEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.JobFinished(ctx, ev)
		}
	}
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev JobEvent)

// JobFinished implements Observer.
func (f ObserverFunc) JobFinished(ctx context.Context, ev JobEvent) {
	f(ctx, ev)
}
