package server

import "github.com/go-chi/chi/v5"

func (s *Server) registerRoutes(r chi.Router) {
	h := s.handlers

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Progress
		r.Get("/watermark", h.GetWatermark)

		// Triggers
		r.Post("/runs/streak", h.TriggerStreak)
		r.Post("/runs/backfill", h.TriggerBackfill)
		r.Post("/runs/nightly", h.TriggerNightly)

		// Subjects and rosters
		r.Get("/subjects", h.ListSubjects)
		r.Put("/subjects/{subjectID}", h.PutSubject)
		r.Get("/subjects/{subjectID}/roster", h.ListRoster)
		r.Put("/subjects/{subjectID}/roster/{studentID}", h.PutRosterEntry)

		// Attendance
		r.Get("/attendance/{date}/{subjectID}", h.ListAttendance)
		r.Put("/attendance/{date}/{subjectID}/{studentID}", h.PutAttendance)

		// Notifications
		r.Get("/notifications", h.ListNotifications)
		r.Get("/students/{studentID}/notifications", h.ListStudentNotifications)
		r.Post("/students/{studentID}/notifications/{notificationID}/resolve", h.ResolveNotification)
	})
}
