package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	BadRequestErrorCode = "BAD_REQUEST"
	GeneralErrorCode    = "GENERAL"
)

type HTTPServiceConfiguration struct {
	Port int32
}

type HTTPService struct {
	HTTPServiceConfiguration *HTTPServiceConfiguration
	Logger                   *logger.Logger
}

type Server struct {
	eng    IFlagEngine
	logger *logger.Logger
}

type evaluationRequest struct {
	Context  model.EvaluationContext `json:"context"`
	Fallback any                     `json:"fallback"`
}

type errorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// badRequestError marks malformed request input.
type badRequestError struct {
	err error
}

func (e badRequestError) Error() string { return e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func (h *HTTPService) Serve(ctx context.Context, eng IFlagEngine) error {
	if h.HTTPServiceConfiguration == nil {
		return errors.New("http service configuration has not been initialised")
	}
	log := h.Logger
	if log == nil {
		log = logger.NewLogger(nil)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", h.HTTPServiceConfiguration.Port),
		Handler:           cors.AllowAll().Handler(otelhttp.NewHandler(NewHandler(eng, log), "flagx")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("unable to shut down http service: %w", err)
		}
		return nil
	}
}

// NewHandler routes the engine operations.
func NewHandler(eng IFlagEngine, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewLogger(nil)
	}
	s := Server{eng: eng, logger: log.Component("http")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(eng.Gatherer(), promhttp.HandlerOpts{}))
	r.Get("/analytics", s.Analytics)
	r.Post("/events", s.RecordEvent)

	r.Route("/flags", func(r chi.Router) {
		r.Get("/", s.ListFlags)
		r.Route("/{flagKey}", func(r chi.Router) {
			r.Get("/", s.GetFlag)
			r.Put("/", s.PutFlag)
			r.Delete("/", s.DeleteFlag)
			r.Post("/evaluate", s.Evaluate)
			r.Put("/enabled", s.SetEnabled)
			r.Put("/rollout", s.SetRollout)
			r.Post("/rollback", s.Rollback)
			r.Post("/analysis", s.Analyse)
			r.Get("/recommendation", s.Recommendation)
			r.Post("/promote", s.Promote)
		})
	})
	return r
}

func (s Server) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	s.write(w, http.StatusOK, s.eng.EvaluateDetails(chi.URLParam(r, "flagKey"), req.Context, req.Fallback))
}

func (s Server) ListFlags(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, map[string]interface{}{"flags": s.eng.GetAllFlags()})
}

func (s Server) GetFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "flagKey")
	flag, ok := s.eng.GetFlag(key)
	if !ok {
		s.handleError(model.NewFlagNotFound(key), w)
		return
	}
	s.write(w, http.StatusOK, flag)
}

func (s Server) PutFlag(w http.ResponseWriter, r *http.Request) {
	var flag model.Flag
	if !s.decode(w, r, &flag) {
		return
	}
	flag.ID = chi.URLParam(r, "flagKey")
	stored, err := s.eng.CreateOrUpdateFlag(flag)
	if err != nil {
		s.handleError(err, w)
		return
	}
	s.write(w, http.StatusOK, stored)
}

func (s Server) DeleteFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "flagKey")
	if !s.eng.DeleteFlag(key) {
		s.handleError(model.NewFlagNotFound(key), w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s Server) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	s.respondFlag(w, r, s.eng.SetEnabled(chi.URLParam(r, "flagKey"), body.Enabled))
}

func (s Server) SetRollout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Percentage int `json:"percentage"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	s.respondFlag(w, r, s.eng.SetRolloutPercentage(chi.URLParam(r, "flagKey"), body.Percentage))
}

func (s Server) Rollback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	s.respondFlag(w, r, s.eng.EmergencyRollback(chi.URLParam(r, "flagKey"), body.Reason))
}

func (s Server) Analyse(w http.ResponseWriter, r *http.Request) {
	results, err := s.eng.RunExperimentAnalysis(chi.URLParam(r, "flagKey"))
	if err != nil {
		s.handleError(err, w)
		return
	}
	s.write(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s Server) Recommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.eng.GetRecommendation(chi.URLParam(r, "flagKey"))
	if err != nil {
		s.handleError(err, w)
		return
	}
	s.write(w, http.StatusOK, rec)
}

func (s Server) Promote(w http.ResponseWriter, r *http.Request) {
	promoted, err := s.eng.PromoteWinner(chi.URLParam(r, "flagKey"))
	if err != nil {
		s.handleError(err, w)
		return
	}
	s.write(w, http.StatusOK, map[string]bool{"promoted": promoted})
}

func (s Server) Analytics(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil {
			s.handleError(badRequestError{fmt.Errorf("invalid hours %q: %w", raw, err)}, w)
			return
		}
		hours = h
	}
	s.write(w, http.StatusOK, s.eng.GetAnalytics(r.URL.Query().Get("flagId"), hours))
}

func (s Server) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string            `json:"name"`
		Value float64           `json:"value"`
		Tags  map[string]string `json:"tags"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Name == "" {
		s.handleError(badRequestError{errors.New("metric name is required")}, w)
		return
	}
	s.eng.RecordMetric(body.Name, body.Value, body.Tags)
	w.WriteHeader(http.StatusAccepted)
}

func (s Server) respondFlag(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.handleError(err, w)
		return
	}
	flag, _ := s.eng.GetFlag(chi.URLParam(r, "flagKey"))
	s.write(w, http.StatusOK, flag)
}

func (s Server) decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.handleError(badRequestError{fmt.Errorf("unable to decode request body: %w", err)}, w)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints where every field may be omitted: an
// empty body leaves into untouched.
func (s Server) decodeOptional(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(into)
	if err != nil && !errors.Is(err, io.EOF) {
		s.handleError(badRequestError{fmt.Errorf("unable to decode request body: %w", err)}, w)
		return false
	}
	return true
}

func (s Server) write(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// some basic mapping of errors from model to HTTP
func (s Server) handleError(err error, w http.ResponseWriter) {
	var (
		cfgErr *model.ConfigurationError
		valErr *model.ValidationError
		badReq badRequestError
	)
	status, code := http.StatusInternalServerError, GeneralErrorCode
	switch {
	case errors.As(err, &cfgErr) && errors.Is(err, model.ErrFlagNotFound):
		status, code = http.StatusNotFound, model.FlagNotFoundErrorCode
	case errors.As(err, &cfgErr):
		status, code = http.StatusBadRequest, cfgErr.Err.Error()
	case errors.As(err, &valErr):
		status, code = http.StatusBadRequest, valErr.Err.Error()
	case errors.As(err, &badReq):
		status, code = http.StatusBadRequest, BadRequestErrorCode
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.write(w, status, errorResponse{ErrorCode: code, Message: err.Error()})
}
