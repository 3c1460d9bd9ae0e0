package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// ListAttendance returns the facts recorded for a subject on a day.
func (h *Handlers) ListAttendance(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := calendar.ParseDay(date); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}
	facts, err := h.provider.ListAttendance(r.Context(), date, chi.URLParam(r, "subjectID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list attendance", err)
		return
	}
	if facts == nil {
		facts = []types.AttendanceFact{}
	}
	h.writeJSON(w, http.StatusOK, facts)
}

// PutAttendance records a manual correction, replacing any existing fact.
// Days the streak engine already processed are not re-evaluated.
func (h *Handlers) PutAttendance(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	subjectID := chi.URLParam(r, "subjectID")
	studentID := chi.URLParam(r, "studentID")
	if _, err := calendar.ParseDay(date); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid date", nil)
		return
	}
	if !validID.MatchString(subjectID) || !validID.MatchString(studentID) {
		h.writeError(w, http.StatusBadRequest, "invalid subject or student id", nil)
		return
	}

	var body struct {
		Remark      string `json:"remark"`
		Status      string `json:"status"`
		Remarks     string `json:"remarks"`
		StudentName string `json:"studentName"`
	}
	if !h.decodeBody(w, r, &body) {
		return
	}

	fact := types.AttendanceFact{
		Date:        date,
		SubjectID:   subjectID,
		StudentID:   studentID,
		Remark:      body.Remark,
		Status:      body.Status,
		Remarks:     body.Remarks,
		StudentName: body.StudentName,
		Source:      types.SourceManual,
		Timestamp:   h.now().UTC(),
	}
	if err := h.provider.PutAttendance(r.Context(), fact); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store attendance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, fact)
}
