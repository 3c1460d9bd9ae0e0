package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/rollcall/internal/calendar"
	"github.com/dwsmith1983/rollcall/pkg/types"
)

// ListSubjects returns every subject.
func (h *Handlers) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.provider.ListSubjects(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list subjects", err)
		return
	}
	if subjects == nil {
		subjects = []types.Subject{}
	}
	h.writeJSON(w, http.StatusOK, subjects)
}

// PutSubject creates or replaces a subject. The ID comes from the path.
func (h *Handlers) PutSubject(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if !validID.MatchString(subjectID) {
		h.writeError(w, http.StatusBadRequest, "invalid subject id", nil)
		return
	}

	var subject types.Subject
	if !h.decodeBody(w, r, &subject) {
		return
	}
	subject.ID = subjectID
	if len(subject.Days) == 0 {
		h.writeError(w, http.StatusBadRequest, "days is required", nil)
		return
	}
	for _, d := range subject.Days {
		if !knownWeekday(d) {
			h.writeError(w, http.StatusBadRequest, "unknown meeting day "+d, nil)
			return
		}
	}

	if err := h.provider.PutSubject(r.Context(), subject); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store subject", err)
		return
	}
	h.writeJSON(w, http.StatusOK, subject)
}

// ListRoster returns a subject's enrollments with per-subject streak state.
func (h *Handlers) ListRoster(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	entries, err := h.provider.ListRoster(r.Context(), subjectID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list roster", err)
		return
	}

	type rosterView struct {
		types.RosterEntry
		Streak types.StreakState `json:"streak"`
	}
	out := make([]rosterView, 0, len(entries))
	for _, e := range entries {
		out = append(out, rosterView{RosterEntry: e, Streak: e.Streak})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// PutRosterEntry enrolls a student in a subject.
func (h *Handlers) PutRosterEntry(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	studentID := chi.URLParam(r, "studentID")
	if !validID.MatchString(subjectID) || !validID.MatchString(studentID) {
		h.writeError(w, http.StatusBadRequest, "invalid subject or student id", nil)
		return
	}

	var body struct {
		StudentName string `json:"studentName"`
	}
	if !h.decodeBody(w, r, &body) {
		return
	}
	entry := types.RosterEntry{StudentID: studentID, StudentName: body.StudentName}
	if err := h.provider.PutRosterEntry(r.Context(), subjectID, entry); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to store roster entry", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func knownWeekday(d string) bool {
	switch calendar.NormalizeWeekday(d) {
	case "mon", "tue", "wed", "thu", "fri", "sat", "sun":
		return true
	}
	return false
}
