package handlers

import (
	"net/http"

	"github.com/dwsmith1983/rollcall/pkg/types"
)

// TriggerStreak runs the streak engine synchronously. A run skipped because
// another actor holds the lease answers 409.
func (h *Handlers) TriggerStreak(w http.ResponseWriter, r *http.Request) {
	if h.streak == nil {
		h.writeError(w, http.StatusNotImplemented, "streak runs not configured", nil)
		return
	}
	summary, err := h.streak.Run(r.Context(), actorID())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "streak run failed", err)
		return
	}
	status := http.StatusOK
	if summary.Skipped == types.SkipLeaseHeld {
		status = http.StatusConflict
	}
	h.writeJSON(w, status, summary)
}

// TriggerBackfill runs the absence backfill sweep synchronously.
func (h *Handlers) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	if h.backfill == nil {
		h.writeError(w, http.StatusNotImplemented, "backfill not configured", nil)
		return
	}
	summary, err := h.backfill.Sweep(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "backfill failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// TriggerNightly runs backfill followed by the streak engine.
func (h *Handlers) TriggerNightly(w http.ResponseWriter, r *http.Request) {
	if h.nightly == nil {
		h.writeError(w, http.StatusNotImplemented, "nightly job not configured", nil)
		return
	}
	report, err := h.nightly.Run(r.Context(), actorID())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "nightly job failed", err)
		return
	}
	status := http.StatusOK
	if report.Streak != nil && report.Streak.Skipped == types.SkipLeaseHeld {
		status = http.StatusConflict
	}
	h.writeJSON(w, status, report)
}
