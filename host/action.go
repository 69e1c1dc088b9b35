package host

import (
	"fmt"
	"net/http"

	"github.com/solhaven/agenthost/tasks"
)

// ControlField is the reserved payload field that triggers the in-band
// control protocol instead of normal dispatch.
const ControlField = "_agent_core_app_action"

// Control actions served when debug actions are enabled.
const (
	ActionPingStatus        = "ping_status"
	ActionJobStatus         = "job_status"
	ActionForceHealthy      = "force_healthy"
	ActionForceBusy         = "force_busy"
	ActionClearForcedStatus = "clear_forced_status"
)

// handleControlAction serves the control protocol if the payload
// carries the reserved action field. It reports whether the request
// was handled; when it returns false the caller proceeds with normal
// dispatch. This path never touches the registered handler.
func (s *Server) handleControlAction(w http.ResponseWriter, r *http.Request, payload any) bool {
	obj, ok := payload.(map[string]any)
	if !ok {
		return false
	}
	action, ok := obj[ControlField].(string)
	if !ok || action == "" {
		return false
	}

	s.logger.DebugContext(r.Context(), "processing control action", "action", action)

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.ErrorContext(r.Context(), "control action failed", "action", action, "panic", rec)
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Debug action failed",
				"details": fmt.Sprint(rec),
			})
		}
	}()

	switch action {
	case ActionPingStatus:
		s.writeJSON(w, http.StatusOK, pingResponse{
			Status:           string(s.tasks.Status()),
			TimeOfLastUpdate: s.tasks.LastChange().Unix(),
		})
	case ActionJobStatus:
		s.writeJSON(w, http.StatusOK, s.tasks.Info())
	case ActionForceHealthy:
		s.tasks.Force(tasks.StatusHealthy)
		s.logger.InfoContext(r.Context(), "ping status forced", "status", tasks.StatusHealthy)
		s.writeJSON(w, http.StatusOK, map[string]string{"forced_status": string(tasks.StatusHealthy)})
	case ActionForceBusy:
		s.tasks.Force(tasks.StatusHealthyBusy)
		s.logger.InfoContext(r.Context(), "ping status forced", "status", tasks.StatusHealthyBusy)
		s.writeJSON(w, http.StatusOK, map[string]string{"forced_status": string(tasks.StatusHealthyBusy)})
	case ActionClearForcedStatus:
		s.tasks.ClearForced()
		s.logger.InfoContext(r.Context(), "forced ping status cleared")
		s.writeJSON(w, http.StatusOK, map[string]string{"forced_status": "Cleared"})
	default:
		s.logger.WarnContext(r.Context(), "unknown control action", "action", action)
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown action: %s", action))
	}
	return true
}
