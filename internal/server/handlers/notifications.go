package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/rollcall/internal/provider"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

const maxNotificationLimit = 500

// ListNotifications returns recent notifications across all students,
// optionally filtered by the studentId query parameter.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	h.listNotifications(w, r, r.URL.Query().Get("studentId"))
}

// ListStudentNotifications returns one student's notifications.
func (h *Handlers) ListStudentNotifications(w http.ResponseWriter, r *http.Request) {
	h.listNotifications(w, r, chi.URLParam(r, "studentID"))
}

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request, studentID string) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxNotificationLimit {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}

	notes, err := h.provider.ListNotifications(r.Context(), studentID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list notifications", err)
		return
	}
	if notes == nil {
		notes = []types.Notification{}
	}
	h.writeJSON(w, http.StatusOK, notes)
}

// ResolveNotification marks a notification handled.
func (h *Handlers) ResolveNotification(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	notificationID := chi.URLParam(r, "notificationID")

	err := h.provider.ResolveNotification(r.Context(), studentID, notificationID)
	if errors.Is(err, provider.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "notification not found", nil)
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to resolve notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
