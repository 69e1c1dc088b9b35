package host

import (
	"fmt"
	"net/http"
	"time"

	"github.com/solhaven/agenthost/serial"
)

// Stream is the explicit lazy-sequence result type. A handler that
// returns a Stream (or a plain iter.Seq2[any, error]) is served as
// Server-Sent Events, one frame per yielded value, in yield order.
// Yielding a non-nil error ends the stream with a terminal error
// frame. The sequence is consumed once.
type Stream func(yield func(any, error) bool)

// streamSeq serves a pull sequence as SSE. Iteration failures after
// partial output become one final error frame rather than a broken
// connection; a panic inside the sequence is treated the same way.
func (s *Server) streamSeq(w http.ResponseWriter, r *http.Request, seq Stream) {
	flush := s.startSSE(w)

	emit := func(v any) bool {
		if r.Context().Err() != nil {
			return false // client gone, stop iterating
		}
		if err := writeSSEFrame(w, serial.Marshal(v)); err != nil {
			return false
		}
		flush()
		return true
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.ErrorContext(r.Context(), "panic in streaming handler", "panic", rec)
			emit(streamErrorEvent(fmt.Errorf("%v", rec)))
		}
	}()

	for v, err := range seq {
		if err != nil {
			s.logger.ErrorContext(r.Context(), "error in streaming handler", "error", err)
			emit(streamErrorEvent(err))
			return
		}
		if !emit(v) {
			return
		}
	}
}

// streamChannel serves a channel-fed sequence as SSE, selecting on the
// request context so a dropped client stops consumption promptly. An
// item satisfying error becomes the terminal error frame.
func (s *Server) streamChannel(w http.ResponseWriter, r *http.Request, ch <-chan any) {
	flush := s.startSSE(w)

	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return
			}
			if err, isErr := v.(error); isErr {
				s.logger.ErrorContext(r.Context(), "error in streaming handler", "error", err)
				if writeSSEFrame(w, serial.Marshal(streamErrorEvent(err))) == nil {
					flush()
				}
				return
			}
			if err := writeSSEFrame(w, serial.Marshal(v)); err != nil {
				return // write failed (e.g. client gone)
			}
			flush()
		case <-r.Context().Done():
			return // client disconnected
		}
	}
}

// startSSE sets streaming headers, clears the write deadline for the
// long-lived connection, and returns a flush func.
func (s *Server) startSSE(w http.ResponseWriter) func() {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}
	return func() {
		if canFlush {
			flusher.Flush()
		}
	}
}

// writeSSEFrame writes one JSON payload as an SSE data event. The
// payload is a single line, so no multi-line splitting is needed.
func writeSSEFrame(w http.ResponseWriter, payload []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// streamErrorEvent is the terminal frame shape for a failed stream.
func streamErrorEvent(err error) map[string]any {
	return map[string]any{
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
		"message":    "An error occurred during streaming",
	}
}
