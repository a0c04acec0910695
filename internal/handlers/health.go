package handlers

import "net/http"

// Health reports aggregate service health: 200 when every probe is
// healthy, 503 otherwise.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	report := h.prober.Run(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
