// Package api exposes the discovery pipeline over HTTP.
//
// Routes:
//
//	GET  /health                    → liveness
//	GET  /api/v1/matches/:userID    → ranked matches for a user
//	POST /api/v1/ingestion          → run ingestion now
//	POST /api/v1/retention/sweep    → run a retention sweep now
//	GET  /api/v1/jobs/status        → scheduler status
//	POST /api/v1/applications       → record an application reference
//	PATCH /api/v1/applications/:id/status → move an application
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/applications"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/relevance"
	"jobmate/discovery-service/internal/scheduler"
	"jobmate/discovery-service/internal/scraper"
	"jobmate/discovery-service/internal/store"
)

// Version is reported by /health.
const Version = "1.0.0"

// Jobs runs and reports the pipeline jobs.
type Jobs interface {
	TriggerIngestion(ctx context.Context, sources []model.Source, q model.Query) (model.IngestionReport, error)
	TriggerSweep(ctx context.Context, staleAfter time.Duration) (model.RetentionReport, error)
	Status() scheduler.Status
}

// Matcher serves ranked matches.
type Matcher interface {
	Matches(ctx context.Context, userID string) ([]model.MatchResult, error)
}

// Recorder records application references and moves them through the
// pipeline.
type Recorder interface {
	Record(ctx context.Context, userID, postingID, status string) (*model.Application, error)
	Move(ctx context.Context, userID, appID, status string) (*model.Application, error)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

type ingestionRequest struct {
	Sources    []string `json:"sources" validate:"omitempty,dive,required"`
	Keywords   string   `json:"keywords" validate:"max=200"`
	Location   string   `json:"location" validate:"max=200"`
	MaxResults int      `json:"maxResults" validate:"gte=0,lte=1000"`
}

type moveRequest struct {
	UserID string `json:"userId" validate:"required"`
	Status string `json:"status" validate:"required"`
}

type sweepRequest struct {
	StaleAfterDays int `json:"staleAfterDays" validate:"gte=0,lte=3650"`
}

type applicationRequest struct {
	UserID    string `json:"userId" validate:"required"`
	PostingID string `json:"postingId" validate:"required"`
	Status    string `json:"status" validate:"omitempty,oneof=TO_APPLY APPLIED INTERVIEW OFFER HIRED REJECTED"`
}

// Handler holds the services behind the routes.
type Handler struct {
	jobs     Jobs
	matches  Matcher
	apps     Recorder
	validate *validator.Validate
	log      *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(jobs Jobs, matches Matcher, apps Recorder, log *zap.Logger) *Handler {
	return &Handler{jobs: jobs, matches: matches, apps: apps, validate: validator.New(), log: log.Named("api")}
}

// NewServer returns an echo instance with middleware and every route
// registered.
func NewServer(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			h.log.Debug("request", fields...)
			return nil
		},
	}))
	h.Register(e)
	return e
}

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.health)

	v1 := e.Group("/api/v1")
	v1.GET("/matches/:userID", h.getMatches)
	v1.POST("/ingestion", h.runIngestion)
	v1.POST("/retention/sweep", h.runSweep)
	v1.GET("/jobs/status", h.jobStatus)
	v1.POST("/applications", h.recordApplication)
	v1.PATCH("/applications/:id/status", h.moveApplication)
}

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Service: "discovery-service", Version: Version})
}

func (h *Handler) getMatches(c echo.Context) error {
	userID := c.Param("userID")
	matches, err := h.matches.Matches(c.Request().Context(), userID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, matches)
	case errors.Is(err, relevance.ErrScoringUnavailable):
		h.log.Warn("scoring unavailable", zap.String("user_id", userID), zap.Error(err))
		return jsonError(c, http.StatusServiceUnavailable, "scoring_unavailable", "matches temporarily unavailable")
	case errors.Is(err, store.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "profile_not_found", "no profile for user "+userID)
	default:
		return h.internal(c, "get matches", err)
	}
}

func (h *Handler) runIngestion(c echo.Context) error {
	var req ingestionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	sources := make([]model.Source, len(req.Sources))
	for i, s := range req.Sources {
		sources[i] = model.Source(s)
	}

	q := model.Query{Keywords: req.Keywords, Location: req.Location, MaxResults: req.MaxResults}
	report, err := h.jobs.TriggerIngestion(c.Request().Context(), sources, q)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, report)
	case errors.Is(err, scraper.ErrUnknownSource):
		return jsonError(c, http.StatusBadRequest, "unknown_source", err.Error())
	default:
		return h.internal(c, "ingestion", err)
	}
}

func (h *Handler) runSweep(c echo.Context) error {
	var req sweepRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	report, err := h.jobs.TriggerSweep(c.Request().Context(), time.Duration(req.StaleAfterDays)*24*time.Hour)
	if err != nil {
		return h.internal(c, "retention sweep", err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) jobStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.Status())
}

func (h *Handler) recordApplication(c echo.Context) error {
	var req applicationRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	app, err := h.apps.Record(c.Request().Context(), req.UserID, req.PostingID, req.Status)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, app)
	case errors.Is(err, applications.ErrInvalidStatus):
		return jsonError(c, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, store.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "posting_not_found", "no posting "+req.PostingID)
	default:
		return h.internal(c, "record application", err)
	}
}

func (h *Handler) moveApplication(c echo.Context) error {
	var req moveRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	appID := c.Param("id")
	app, err := h.apps.Move(c.Request().Context(), req.UserID, appID, req.Status)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, app)
	case errors.Is(err, applications.ErrInvalidStatus):
		return jsonError(c, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, applications.ErrForbiddenTransition):
		return jsonError(c, http.StatusConflict, "forbidden_transition", err.Error())
	case errors.Is(err, store.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "application_not_found", "no application "+appID)
	default:
		return h.internal(c, "move application", err)
	}
}

// bind decodes and validates the body. The returned error renders as a
// 400 errorResponse through echo's error handler.
func (h *Handler) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorResponse{Error: "validation_failed", Message: err.Error()})
	}
	return nil
}

func (h *Handler) internal(c echo.Context, op string, err error) error {
	h.log.Error(op+" failed", zap.Error(err))
	return jsonError(c, http.StatusInternalServerError, "internal", op+" failed")
}

func jsonError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorResponse{Error: code, Message: msg})
}
