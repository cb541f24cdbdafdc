package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kasuboski/bangumiz/pkg/logger"
	"github.com/kasuboski/bangumiz/pkg/tracker"
	"go.uber.org/zap"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type GenericResponse struct {
	Error    string `json:"error,omitempty"`
	Response any    `json:"response"`
}

// ReportSource provides the report of the most recent poll cycle
type ReportSource interface {
	LastReport() (tracker.Report, bool)
}

// Server exposes tracker status over http
type Server struct {
	baseLogger *zap.SugaredLogger
	reports    ReportSource
}

// New creates a new status server
func New(logger *zap.SugaredLogger, reports ReportSource) Server {
	return Server{
		baseLogger: logger,
		reports:    reports,
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, err error) error {
	return writeResponse(w, status, GenericResponse{
		Error: err.Error(),
	})
}

func writeResponse(w http.ResponseWriter, status int, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	w.Header().Set("content-type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}

	_, err = w.Write(b)
	return err
}

// Handler returns the routes of the status api
func (s Server) Handler() http.Handler {
	rtr := mux.NewRouter()
	rtr.Use(s.LogMiddleware())
	rtr.HandleFunc("/healthz", s.Healthz()).Methods(http.MethodGet)

	api := rtr.PathPrefix("/api").Subrouter()

	v1 := api.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/cycle", s.LastCycle()).Methods(http.MethodGet)

	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
	)(rtr)
}

// Serve starts the http server and blocks until ctx is done
func (s Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second * 5,
	}

	errs := make(chan error, 1)
	go func() {
		s.baseLogger.Infow("serving...", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// Healthz is an endpoint that can be used for probes
func (s Server) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := GenericResponse{
			Response: "ok",
		}
		writeResponse(w, http.StatusOK, response)
	}
}

// LastCycle returns the report of the most recent poll cycle
func (s Server) LastCycle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromCtx(r.Context())

		report, ok := s.reports.LastReport()
		if !ok {
			writeErrorResponse(w, http.StatusNotFound, errors.New("no cycle has run yet"))
			return
		}

		err := writeResponse(w, http.StatusOK, GenericResponse{Response: report})
		if err != nil {
			log.Errorw("failed to write response", zap.Error(err))
			return
		}
	}
}
