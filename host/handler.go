package host

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
)

// HandlerFunc is an entrypoint that does not read per-request scope.
type HandlerFunc func(payload json.RawMessage) (any, error)

// ContextHandlerFunc is an entrypoint that receives the request
// context; rscope getters resolve inside it.
type ContextHandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// descriptor is the registered entrypoint in canonical form. The
// handler's shape is inspected once here, never per invocation.
type descriptor struct {
	invoke   ContextHandlerFunc
	name     string
	blocking bool
}

// Register stores handler as the single entrypoint. Accepted shapes
// are HandlerFunc and ContextHandlerFunc (or assignable function
// literals). Registering again replaces the previous entrypoint.
func (s *Server) Register(handler any) error {
	return s.register(handler, false)
}

// RegisterBlocking is Register for handlers that block. Blocking
// handlers run under a bounded semaphore so slow work cannot pile up
// without limit.
func (s *Server) RegisterBlocking(handler any) error {
	return s.register(handler, true)
}

func (s *Server) register(handler any, blocking bool) error {
	d, err := describe(handler)
	if err != nil {
		return err
	}
	d.blocking = blocking

	s.mu.Lock()
	replaced := s.handler != nil
	s.handler = d
	s.mu.Unlock()

	if replaced {
		s.logger.Warn("entrypoint replaced", "handler", d.name)
	} else {
		s.logger.Info("entrypoint registered", "handler", d.name, "blocking", blocking)
	}
	return nil
}

// describe adapts a supported handler shape into canonical form.
func describe(handler any) (*descriptor, error) {
	switch h := handler.(type) {
	case ContextHandlerFunc:
		return &descriptor{invoke: h, name: funcName(h)}, nil
	case func(ctx context.Context, payload json.RawMessage) (any, error):
		return &descriptor{invoke: h, name: funcName(h)}, nil
	case HandlerFunc:
		return &descriptor{invoke: dropContext(h), name: funcName(h)}, nil
	case func(payload json.RawMessage) (any, error):
		return &descriptor{invoke: dropContext(h), name: funcName(h)}, nil
	case nil:
		return nil, fmt.Errorf("handler is nil")
	default:
		return nil, fmt.Errorf("unsupported handler signature %T", handler)
	}
}

func dropContext(h HandlerFunc) ContextHandlerFunc {
	return func(_ context.Context, payload json.RawMessage) (any, error) {
		return h(payload)
	}
}

// descriptorSnapshot returns the current entrypoint, if one is registered.
func (s *Server) descriptorSnapshot() (*descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler, s.handler != nil
}

// dispatch invokes the entrypoint. Non-blocking handlers run on the
// request goroutine. Blocking handlers first acquire a semaphore slot,
// then run on their own goroutine so the dispatcher can honor context
// cancellation while waiting; the request context travels with the
// call, so scope lookups inside the handler still resolve.
func (s *Server) dispatch(ctx context.Context, d *descriptor, payload json.RawMessage) (any, error) {
	if !d.blocking {
		return d.invoke(ctx, payload)
	}

	if err := s.blockingSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire worker slot: %w", err)
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer s.blockingSem.Release(1)
		result, err := d.invoke(ctx, payload)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// funcName names a handler for logs.
func funcName(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()
	if f := runtime.FuncForPC(pc); f != nil {
		return f.Name()
	}
	return "unknown"
}
