package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"autoprofile/internal/observability"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(observability.Measure)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.ListProfiles)
			r.Post("/", h.CreateProfile)
			r.Post("/validate", h.ValidateProfile)
			r.Put("/order", h.ReorderProfiles)
			r.Get("/{id}", h.GetProfile)
			r.Put("/{id}", h.UpdateProfile)
			r.Delete("/{id}", h.DeleteProfile)
			r.Post("/{id}/activate", h.ActivateProfile)
		})
		r.Get("/parameters", h.ListParameters)
		r.Put("/parameters/{name}", h.SetParameter)
		r.Get("/evaluate", h.Evaluate)
		r.Get("/schedules/{id}", h.ScheduleState)
		r.Get("/status", h.Status)
		r.Post("/resume", h.Resume)
		r.Post("/pause", h.Pause)
		r.Put("/auto", h.SetAuto)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.MetricsHandler())
	return r
}
