package tasks

import "time"

// Status is the liveness state reported on the ping endpoint.
type Status string

const (
	// StatusHealthy means the process is idle and ready for work.
	StatusHealthy Status = "Healthy"
	// StatusHealthyBusy means the process is serving but has active
	// background tasks.
	StatusHealthyBusy Status = "HealthyBusy"
)

// Status computes the effective ping status. Precedence: a forced
// status wins outright; otherwise a registered provider is consulted,
// with panics treated as no opinion; otherwise the status is busy
// exactly when tasks are active. The last-change timestamp moves only
// when the effective value actually changes.
func (r *Registry) Status() Status {
	r.mu.Lock()
	forced := r.forced
	provider := r.provider
	r.mu.Unlock()

	// The provider runs without the lock so it may read registry
	// state (Count, Info) from inside the callback.
	var status Status
	switch {
	case forced != nil:
		status = *forced
	case provider != nil:
		if s, ok := r.callProvider(provider); ok {
			status = s
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if status == "" {
		if len(r.active) > 0 {
			status = StatusHealthyBusy
		} else {
			status = StatusHealthy
		}
	}

	if status != r.lastKnown {
		r.lastKnown = status
		r.lastChange = time.Now()
	}

	return status
}

// callProvider invokes the custom status provider with panics
// contained. A panic or an unrecognized value falls through to the
// automatic computation.
func (r *Registry) callProvider(provider func() Status) (s Status, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("ping status provider panicked, using automatic status", "panic", rec)
			s, ok = "", false
		}
	}()

	s = provider()
	if s != StatusHealthy && s != StatusHealthyBusy {
		r.logger.Warn("ping status provider returned unknown status", "status", string(s))
		return "", false
	}
	return s, true
}

// Force overrides the computed status until ClearForced is called.
func (r *Registry) Force(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced = &s
}

// ClearForced removes the override and resumes automatic computation.
func (r *Registry) ClearForced() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced = nil
}

// SetStatusProvider registers a custom status source consulted when no
// forced status is set.
func (r *Registry) SetStatusProvider(fn func() Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider = fn
}

// LastChange returns when the effective status last changed.
func (r *Registry) LastChange() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastChange
}
