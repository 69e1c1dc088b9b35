package host

import (
	"net/http"
	"time"

	"github.com/solhaven/agenthost/tasks"
)

// pingResponse is the JSON body for GET /ping.
type pingResponse struct {
	Status           string `json:"status"`
	TimeOfLastUpdate int64  `json:"time_of_last_update"`
}

// handlePing reports the effective liveness status. It always answers
// 200: if status computation fails for any reason the response
// degrades to Healthy with the current time.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	resp := s.pingBody(r)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) pingBody(r *http.Request) (resp pingResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.ErrorContext(r.Context(), "ping status computation failed", "panic", rec)
			resp = pingResponse{
				Status:           string(tasks.StatusHealthy),
				TimeOfLastUpdate: time.Now().Unix(),
			}
		}
	}()

	status := s.tasks.Status()
	return pingResponse{
		Status:           string(status),
		TimeOfLastUpdate: s.tasks.LastChange().Unix(),
	}
}
