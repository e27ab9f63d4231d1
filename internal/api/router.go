package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleLiveness)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Post("/stop", s.handleStopAll)

		r.Route("/{device}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Post("/stop", s.handleStopDevice)

			r.Route("/sensors", func(r chi.Router) {
				r.Get("/", s.handleListSensors)
				r.Get("/{index}", s.handleGetSensor)
				r.Get("/{index}/read", s.handleReadSensor)
			})

			r.Route("/actuators", func(r chi.Router) {
				r.Get("/", s.handleListActuators)
				r.Get("/{index}", s.handleGetActuator)
				r.Post("/{index}", s.handleSetActuator)
			})

			r.Route("/rotatory_actuators", func(r chi.Router) {
				r.Get("/", s.handleListRotatoryActuators)
				r.Get("/{index}", s.handleGetRotatoryActuator)
				r.Post("/{index}", s.handleSetRotatoryActuator)
			})

			r.Route("/linear_actuators", func(r chi.Router) {
				r.Get("/", s.handleListLinearActuators)
				r.Get("/{index}", s.handleGetLinearActuator)
				r.Post("/{index}", s.handleSetLinearActuator)
			})

			if s.audit != nil {
				r.Get("/commands", s.handleListDeviceCommands)
			}
		})
	})

	return r
}
