// Package tasks tracks in-flight background work and derives the
// process liveness status reported on the ping endpoint.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry is one tracked unit of background work.
type Entry struct {
	ID        string
	Name      string
	StartTime time.Time
	Metadata  map[string]any
}

// Job is an active task as reported in snapshots.
type Job struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
}

// Info is a point-in-time snapshot of the registry.
type Info struct {
	ActiveCount int   `json:"active_count"`
	RunningJobs []Job `json:"running_jobs"`
}

// Registry tracks active tasks and computes the effective ping status.
// One mutex guards the task map and all ping state, since both are
// touched from concurrent request goroutines.
type Registry struct {
	logger *slog.Logger

	mu         sync.Mutex
	active     map[string]Entry
	forced     *Status
	provider   func() Status
	lastKnown  Status
	lastChange time.Time
	onCount    func(active int)
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:     logger,
		active:     make(map[string]Entry),
		lastKnown:  StatusHealthy,
		lastChange: time.Now(),
	}
}

// Add starts tracking a task and returns its id. It always succeeds.
func (r *Registry) Add(name string, metadata map[string]any) string {
	id := ulid.Make().String()

	r.mu.Lock()
	r.active[id] = Entry{
		ID:        id,
		Name:      name,
		StartTime: time.Now(),
		Metadata:  metadata,
	}
	r.notifyCount()
	r.mu.Unlock()

	r.logger.Info("task started", "name", name, "task_id", id)
	return id
}

// Complete stops tracking a task. It returns true if the id was
// active and false if it was unknown or already completed; completing
// twice is not an error.
func (r *Registry) Complete(id string) bool {
	r.mu.Lock()
	entry, ok := r.active[id]
	if ok {
		delete(r.active, id)
		r.notifyCount()
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("complete on unknown task", "task_id", id)
		return false
	}

	r.logger.Info("task completed",
		"name", entry.Name,
		"task_id", id,
		"duration_s", time.Since(entry.StartTime).Seconds(),
	)
	return true
}

// Info snapshots the active tasks. Entries with an unusable start time
// are skipped rather than failing the whole snapshot.
func (r *Registry) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]Job, 0, len(r.active))
	now := time.Now()
	for _, e := range r.active {
		if e.StartTime.IsZero() || e.StartTime.After(now) {
			continue
		}
		jobs = append(jobs, Job{
			Name:     e.Name,
			Duration: now.Sub(e.StartTime).Seconds(),
		})
	}

	return Info{ActiveCount: len(r.active), RunningJobs: jobs}
}

// Count returns the number of active tasks.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Track wraps fn so that the registry marks a task active for the
// duration of each call. Completion happens on every exit path and
// errors from fn pass through unchanged.
func (r *Registry) Track(name string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		id := r.Add(name, nil)
		defer r.Complete(id)

		if err := fn(ctx); err != nil {
			r.logger.ErrorContext(ctx, "task failed", "name", name, "task_id", id, "error", err)
			return err
		}
		return nil
	}
}

// Go runs fn in a tracked goroutine and returns a channel that yields
// fn's error once it finishes.
func (r *Registry) Go(ctx context.Context, name string, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	tracked := r.Track(name, fn)
	go func() {
		done <- tracked(ctx)
		close(done)
	}()
	return done
}

// notifyCount reports the active-task count to the registered hook, if
// any. Called with the mutex held so hooks see counts in the order the
// registry changed.
func (r *Registry) notifyCount() {
	if r.onCount != nil {
		r.onCount(len(r.active))
	}
}

// SetCountHook registers a callback invoked with the active-task count
// after every Add and Complete. The hook runs with the registry lock
// held, so it must be fast and must not call back into the registry.
// Set it before the registry is shared.
func (r *Registry) SetCountHook(fn func(active int)) {
	r.onCount = fn
}
