package server

import (
	"net/http"
	"time"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the relay manager is wired. Upstream state is not a
// readiness condition: the relay is idle until the UI asks for a channel.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.mgr == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":       "not_ready",
			"failed_check": "relay",
			"error":        "session manager not configured",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns the active session, if any, and process uptime.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"started_at":     h.started,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.mgr != nil {
		if info, ok := h.mgr.Active(); ok {
			resp["session"] = info
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
