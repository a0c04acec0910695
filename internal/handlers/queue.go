package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/greenlanehq/greenlane/internal/queue"
)

type queueResponse struct {
	Success       bool    `json:"success"`
	Processed     int     `json:"processed"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	DurationMS    float64 `json:"duration"`
	Error         string  `json:"error,omitempty"`
	CorrelationID string  `json:"correlationId"`
}

// ProcessQueue drains one batch of due notification jobs. It is
// invoked by an external scheduler and guarded by a shared bearer
// token.
func (h *Handlers) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	correlationID := RequestIDFromContext(ctx)

	if !h.authorizeOperator(r) {
		logger.Warn("queue trigger rejected: bad bearer token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	start := time.Now()
	result, err := h.queue.ProcessDue(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyRunning) {
			logger.Info("queue cycle skipped: previous cycle still running")
			writeJSON(w, http.StatusOK, queueResponse{
				Success:       true,
				DurationMS:    float64(time.Since(start).Milliseconds()),
				CorrelationID: correlationID,
			})
			return
		}
		logger.Error("queue processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, queueResponse{
			Success:       false,
			Error:         "queue processing failed",
			DurationMS:    float64(time.Since(start).Milliseconds()),
			CorrelationID: correlationID,
		})
		return
	}

	if _, err := h.queue.Cleanup(ctx); err != nil {
		logger.Error("queue cleanup failed", "error", err)
	}

	writeJSON(w, http.StatusOK, queueResponse{
		Success:       true,
		Processed:     result.Processed,
		Successful:    result.Successful,
		Failed:        result.Failed,
		DurationMS:    float64(time.Since(start).Milliseconds()),
		CorrelationID: correlationID,
	})
}

func (h *Handlers) authorizeOperator(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.config.QueueTriggerToken)) == 1
}
