package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kasuboski/bangumiz/pkg/logger"
	"go.uber.org/zap"
)

// statusRecorder remembers the status written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LogMiddleware tags each request with an id and the matched route. When a
// cycle has run, its id is attached so status polls can be tied to a report.
func (s Server) LogMiddleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			log := s.baseLogger.With(zap.String("route", route), zap.String("request_id", uuid.NewString()))
			if s.reports != nil {
				if report, ok := s.reports.LastReport(); ok {
					log = log.With(zap.String("cycle_id", report.CycleID))
				}
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			h.ServeHTTP(rec, r.WithContext(logger.WithCtx(r.Context(), log)))

			log.Debugw("handled request", zap.String("method", r.Method), zap.Int("status", rec.status), zap.Duration("duration", time.Since(start)))
		})
	}
}
