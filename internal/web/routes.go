package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/route-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.db)
	routesHandler := handlers.NewRoutesHandler(s.service, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(s.service, s.logger)
	identitiesHandler := handlers.NewIdentitiesHandler(s.service, s.logger)

	s.router.Get("/api/v1/health", healthHandler.Check)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Routes and enrollment
		r.Get("/routes", routesHandler.List)
		r.Post("/routes", routesHandler.Create)
		r.Post("/routes/{route}/enroll", routesHandler.Enroll)

		// Attendance
		r.Post("/routes/{route}/attendance", attendanceHandler.Submit)
		r.Get("/routes/{route}/attendance", attendanceHandler.Day)
		r.Get("/routes/{route}/audit", attendanceHandler.Audit)

		// Identities
		r.Get("/identities", identitiesHandler.Search)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Delete("/identities/{id}", identitiesHandler.Deactivate)
		r.Get("/identities/{id}/attendance", identitiesHandler.Attendance)
	})
}
