// Package controller exposes the campaign pipeline over HTTP.
package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/handler"
	"github.com/unclebandit/leadhunter-backend/internal/httputil"
)

// NewRouter mounts the campaign API and the delivery webhooks.
func NewRouter(c *CampaignController, hooks *handler.DeliveryHandler, log *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, log, map[string]string{"status": "ok"})
	})

	r.Route("/campaigns/{id}", func(r chi.Router) {
		r.Post("/hunt", c.withCaller(c.RunHunt))
		r.Post("/send", c.withCaller(c.RunSend))
		r.Post("/followup", c.withCaller(c.RunFollowup))
		r.Post("/pause", c.withCaller(c.Pause))
		r.Post("/activate", c.withCaller(c.Activate))
		r.Get("/runs", c.withCaller(c.Runs))
		r.Get("/stats", c.withCaller(c.Stats))
	})
	r.Route("/prospects/{id}", func(r chi.Router) {
		r.Post("/archive", c.withCaller(c.ArchiveProspect))
		r.Post("/meeting-booked", c.withCaller(c.MarkMeetingBooked))
	})
	r.Post("/cron/auto-cycle", c.AutoCycle)

	if hooks != nil {
		r.Post("/webhooks/delivery", hooks.Generic)
		r.Post("/webhooks/ses", hooks.SES)
	}
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
