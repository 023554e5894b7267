// Package http is exposing the resource and archive endpoints as JSON API
// and serving the rendered diff pages.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gitlab.com/henri.philipps/diffdetect/endpoint"
	"golang.org/x/exp/slog"
)

// MakeAPIHandler is creating the router for the JSON API and the diff pages.
// Manual fetches are run by fetcher.
func MakeAPIHandler(resourcesvc endpoint.ResourceService, archivesvc endpoint.ArchiveService, fetcher endpoint.Fetcher,
	logger *slog.Logger) *chi.Mux {
	resourceEndpoints := endpoint.MakeResourceEndpoints(resourcesvc, logger)
	archiveEndpoints := endpoint.MakeArchiveEndpoints(archivesvc, fetcher, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Route("/api", func(r chi.Router) {
		r.Route("/resources", func(r chi.Router) {
			r.Post("/", createJSONHandler(resourceEndpoints.AddResource))
			r.Get("/", createJSONHandler(resourceEndpoints.ListResources))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", createJSONHandler(resourceEndpoints.GetResource))
				r.Put("/", createJSONHandler(resourceEndpoints.UpdateResource))
				r.Post("/fetch", createJSONHandler(archiveEndpoints.FetchAndStore))
				r.Get("/snapshots", createJSONHandler(archiveEndpoints.ListSnapshots))
				r.Get("/selection", createJSONHandler(archiveEndpoints.DefaultSelection))
				r.Get("/diff", createJSONHandler(archiveEndpoints.RenderDiff))
			})
		})

		r.Get("/snapshots/{id}", createJSONHandler(archiveEndpoints.GetSnapshot))

		r.Post("/intervals", createJSONHandler(resourceEndpoints.AddInterval))
		r.Get("/intervals", createJSONHandler(resourceEndpoints.ListIntervals))
	})

	router.Get("/diff/{id}", createHTMLDiffHandler(archiveEndpoints.RenderDiff, logger))

	return router
}

// requestLogger is logging every request with its status and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			begin := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(begin)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
