package worker

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the coordinator's HTTP surface: health and metrics, the
// client bridge endpoints under /internal, and the proxy catch-all.
func (c *Coordinator) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(c.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(c.trackEvents)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !c.Ready() {
			http.Error(w, "activating", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/internal", func(r chi.Router) {
		r.Get("/events", c.hub.ServeSSE)
		r.Post("/message", c.ServeMessage)
		r.Post("/sync", c.ServeSync)
		r.Post("/push", c.ServePush)
		r.Post("/notification-click", c.ServeNotificationClick)
		r.Post("/version", c.ServeStageVersion)
	})

	// Everything else is intercepted application traffic.
	r.HandleFunc("/*", c.ServeProxy)

	return r
}

// trackEvents counts every in-flight handler so Shutdown can wait for
// pending work instead of abandoning cache writes or queue mutations.
func (c *Coordinator) trackEvents(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.inflight.Add(1)
		defer c.inflight.Done()
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs request completion with status and duration.
func (c *Coordinator) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The event stream stays open for the client's lifetime; logging
		// its completion time is noise.
		if r.URL.Path == "/internal/events" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		c.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}
