package host

import (
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/solhaven/agenthost/rscope"
	"github.com/solhaven/agenthost/serial"
)

// maxBodySize bounds invocation payloads.
const maxBodySize = 4 << 20 // 4 MB

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	ctx, _ := rscope.Build(r.Context(), r)
	r = r.WithContext(ctx)

	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.WarnContext(ctx, "request body too large", "limit", tooLarge.Limit)
			s.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		s.logger.WarnContext(ctx, "reading request body", "error", err)
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.WarnContext(ctx, "invalid JSON in request", "error", err)
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid JSON",
			"details": err.Error(),
		})
		return
	}

	if s.debugActions && s.handleControlAction(w, r, payload) {
		return
	}

	d, ok := s.descriptorSnapshot()
	if !ok {
		s.logger.ErrorContext(ctx, "no entrypoint defined")
		s.writeError(w, http.StatusInternalServerError, "No entrypoint defined")
		return
	}

	s.logger.DebugContext(ctx, "invoking handler", "handler", d.name)
	result, err := s.dispatch(ctx, d, body)
	if err != nil {
		s.logger.ErrorContext(ctx, "invocation failed",
			"handler", d.name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch v := result.(type) {
	case Stream:
		s.logger.InfoContext(ctx, "returning streaming response",
			"duration_ms", time.Since(start).Milliseconds())
		s.streamSeq(w, r, v)
	case iter.Seq2[any, error]:
		s.logger.InfoContext(ctx, "returning streaming response",
			"duration_ms", time.Since(start).Milliseconds())
		s.streamSeq(w, r, Stream(v))
	case <-chan any:
		s.logger.InfoContext(ctx, "returning channel streaming response",
			"duration_ms", time.Since(start).Milliseconds())
		s.streamChannel(w, r, v)
	case chan any:
		s.logger.InfoContext(ctx, "returning channel streaming response",
			"duration_ms", time.Since(start).Milliseconds())
		s.streamChannel(w, r, v)
	default:
		s.logger.InfoContext(ctx, "invocation completed",
			"duration_ms", time.Since(start).Milliseconds())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(serial.Marshal(result)); err != nil {
			s.logger.ErrorContext(ctx, "write response", "error", err)
		}
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
