package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter mounts the handler's routes. metrics is served on /metrics when
// not nil. Wishlist and dead-letter routes exist only when the handler has
// the matching repository.
func NewRouter(h *Handler, metrics http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/notification/health", h.HandleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pipeline/topics", h.HandleTopics)

		r.Route("/books/{bookID}", func(r chi.Router) {
			r.Post("/status", h.HandleStatusChange)
			r.Post("/notifications", h.HandleNotify)

			if h.wishlist != nil {
				r.Get("/wishlist", h.HandleListWishlist)
				r.Post("/wishlist", h.HandleAddWishlist)
				r.Delete("/wishlist/{userID}", h.HandleRemoveWishlist)
			}
		})

		if h.deadLetters != nil {
			r.Get("/dead-letters", h.HandleListDeadLetters)
			r.Get("/dead-letters/stats", h.HandleDeadLetterStats)
			r.Post("/dead-letters/{id}/resolve", h.HandleResolveDeadLetter)
		}
	})

	return r
}

func loggerMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("Request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
