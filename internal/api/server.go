// Package api exposes the HTTP interface for the admission and scheduling
// core: job submission, status polling and result retrieval, plus the
// operational endpoints (health, readiness, metrics).
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearwell/crawlctl/internal/apierr"
	"github.com/clearwell/crawlctl/internal/config"
	"github.com/clearwell/crawlctl/internal/domain"
	sha256hash "github.com/clearwell/crawlctl/internal/hash/sha256"
	"github.com/clearwell/crawlctl/internal/intake"
	"github.com/clearwell/crawlctl/internal/metrics"
	mwmetrics "github.com/clearwell/crawlctl/internal/middleware"
)

// Intake is the subset of the Job Intake & Dispatch service the HTTP surface
// drives: submit a job, read its status, and read its result.
type Intake interface {
	Submit(ctx context.Context, urls []string, userID string) (string, error)
	GetStatus(ctx context.Context, jobID string) (intake.JobStatusView, error)
	GetResult(ctx context.Context, jobID string) (domain.Job, error)
}

// Server wires HTTP handlers to the admission core.
type Server struct {
	router chi.Router
	intake Intake
	logger *zap.Logger
	hasher *sha256hash.Hasher
}

// NewServer constructs a Server with the standard middleware chain and the
// three-endpoint REST surface plus health/readiness/metrics.
func NewServer(intake Intake, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{intake: intake, logger: logger, hasher: sha256hash.New()}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(mwmetrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", s.submitJob)
		r.Route("/{jobId}", func(r chi.Router) {
			r.Get("/status", s.getStatus)
			r.Get("/result", s.getResult)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	URLs   []string `json:"urls"`
	UserID string   `json:"userId,omitempty"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(s.logger, w, apierr.New(apierr.KindInvalidInput, "validation failed").WithDetails("malformed JSON body"))
		return
	}

	jobID, err := s.intake.Submit(r.Context(), req.URLs, req.UserID)
	if err != nil {
		writeAPIError(s.logger, w, err)
		return
	}
	metrics.ObserveJobSubmitted(req.UserID)
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"jobId": jobID})
}

type statusResponse struct {
	JobID         string  `json:"jobId"`
	Status        string  `json:"status"`
	LiveMessage   *string `json:"liveMessage"`
	URLsSubmitted int     `json:"urlsSubmitted"`
	URLsSucceeded int     `json:"urlsSucceeded"`
	URLsFailed    int     `json:"urlsFailed"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	view, err := s.intake.GetStatus(r.Context(), jobID)
	if err != nil {
		writeAPIError(s.logger, w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, statusResponse{
		JobID:         view.JobID,
		Status:        string(view.Status),
		LiveMessage:   view.LiveMessage,
		URLsSubmitted: view.URLsSubmitted,
		URLsSucceeded: view.URLsSucceeded,
		URLsFailed:    view.URLsFailed,
	})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	job, err := s.intake.GetResult(r.Context(), jobID)
	if err != nil {
		writeAPIError(s.logger, w, err)
		return
	}
	body := []byte(job.ResultArtifact)
	if etag, err := s.hasher.ETag(body); err != nil {
		s.logger.Warn("compute result etag failed", zap.String("job_id", jobID), zap.Error(err))
	} else {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("write result body failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// errorEnvelope is the §6 error shape: {status, message, details}.
type errorEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func writeAPIError(logger *zap.Logger, w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.KindInternal, err.Error(), err)
	}
	if apiErr.Status() >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("kind", string(apiErr.Kind)), zap.Error(apiErr))
	}
	writeJSON(logger, w, apiErr.Status(), errorEnvelope{
		Status:  apiErr.Status(),
		Message: apiErr.Message,
		Details: apiErr.Details,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("recovered", rec))
					writeAPIError(logger, w, apierr.New(apierr.KindInternal, "internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key != expected {
				writeJSON(nopLogger, w, http.StatusUnauthorized, errorEnvelope{
					Status:  http.StatusUnauthorized,
					Message: "unauthorized",
					Details: "missing or invalid API key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var nopLogger = zap.NewNop()

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, errors.Join(errors.New("write response"), err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacker not supported")
	}
	conn, buf, err := h.Hijack()
	if err != nil {
		return nil, nil, errors.Join(errors.New("hijack connection"), err)
	}
	return conn, buf, nil
}

type requestIDKey struct{}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON response failed", zap.Error(err))
	}
}
