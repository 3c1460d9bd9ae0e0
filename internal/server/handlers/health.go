package handlers

import (
	"net/http"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// Health returns the server health status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.provider.Ping(r.Context()); err != nil {
		h.logger.Warn("health check ping failed", "error", err)
		status = "degraded"
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// watermarkStatus is the watermark plus derived progress fields.
type watermarkStatus struct {
	types.Watermark
	Yesterday string `json:"yesterday"`
	LeaseHeld bool   `json:"leaseHeld"`
	// DaysBehind counts days from LastStreakRunDate to yesterday.
	DaysBehind int `json:"daysBehind"`
}

// GetWatermark returns the progress record and whether a run holds the lease.
func (h *Handlers) GetWatermark(w http.ResponseWriter, r *http.Request) {
	wm, err := h.provider.GetWatermark(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read watermark", err)
		return
	}
	now := h.now()
	out := watermarkStatus{
		Watermark: wm,
		Yesterday: calendar.Yesterday(now, h.loc),
		LeaseHeld: wm.ProcessingLease.ValidAt(now),
	}
	if wm.LastStreakRunDate != "" {
		if days, err := calendar.Days(wm.LastStreakRunDate, out.Yesterday); err == nil && len(days) > 0 {
			out.DaysBehind = len(days) - 1
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}
