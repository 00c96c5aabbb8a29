package core

// limiter.go bounds how many files are ingested at once. Rows of a file are
// committed in a single transaction, so by default one file runs at a time;
// the inbox watcher and the HTTP trigger share the same limiter.

import (
	"context"
	"errors"
	"time"
)

// ErrIngestBusy is returned when no ingestion slot frees up within the wait
// time. Callers should retry later.
var ErrIngestBusy = errors.New("ingestion busy: another file is being processed")

// DefaultMaxConcurrentIngests is the default number of files ingested at once.
const DefaultMaxConcurrentIngests = 1

// DefaultMaxIngestWait is how long Acquire waits for a slot.
const DefaultMaxIngestWait = 30 * time.Second

// IngestLimiter is a counting semaphore over ingestion runs.
type IngestLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewIngestLimiter allows maxConcurrent simultaneous ingestions. Callers that
// cannot get a slot within maxWait receive ErrIngestBusy.
func NewIngestLimiter(maxConcurrent int, maxWait time.Duration) *IngestLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentIngests
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxIngestWait
	}
	return &IngestLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it.
func (l *IngestLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrIngestBusy
	}
}

// TryAcquire takes a slot without waiting.
func (l *IngestLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *IngestLimiter) Release() {
	<-l.slots
}

// Active returns the number of running ingestions.
func (l *IngestLimiter) Active() int {
	return len(l.slots)
}

// MaxConcurrent returns the slot count.
func (l *IngestLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no ingestion is running or ctx ends.
func (l *IngestLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
