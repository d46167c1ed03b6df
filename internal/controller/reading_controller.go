package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"CapIot.readings/internal/aggregate"
	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/middleware"
	"CapIot.readings/internal/models"
	"CapIot.readings/internal/repository"
	"CapIot.readings/internal/service"
	"CapIot.readings/internal/utils"
	"CapIot.readings/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ReadingController handles HTTP requests for sensor readings.
type ReadingController struct {
	service   *service.ReadingService
	validator *validation.Validator
	logger    *zap.Logger
}

// NewReadingController creates a new ReadingController.
func NewReadingController(service *service.ReadingService, validator *validation.Validator, logger *zap.Logger) *ReadingController {
	return &ReadingController{
		service:   service,
		validator: validator,
		logger:    logger,
	}
}

// empty is the body of a metric request that matched no readings.
var empty = struct{}{}

// CreateReading handles POST /devices/{device_uuid}/readings/.
func (c *ReadingController) CreateReading(w http.ResponseWriter, r *http.Request) {
	body, ok := c.readBody(w, r)
	if !ok {
		return
	}
	nr, err := c.validator.NewReading(body)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	stored, err := c.service.Record(r.Context(), deviceUUID(r), nr)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, stored)
}

// ListReadings handles GET /devices/{device_uuid}/readings/.
func (c *ReadingController) ListReadings(w http.ResponseWriter, r *http.Request) {
	q, ok := c.parseQuery(w, r, models.QueryList)
	if !ok {
		return
	}
	readings, err := c.service.List(r.Context(), filter.ForDevice(deviceUUID(r), q))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, readings)
}

func (c *ReadingController) MinReading(w http.ResponseWriter, r *http.Request) {
	c.single(w, r, models.QueryMetric, func(ctx context.Context, p filter.Predicate) (any, bool, error) {
		return c.service.Min(ctx, p)
	})
}

func (c *ReadingController) MaxReading(w http.ResponseWriter, r *http.Request) {
	c.single(w, r, models.QueryMetric, func(ctx context.Context, p filter.Predicate) (any, bool, error) {
		return c.service.Max(ctx, p)
	})
}

func (c *ReadingController) MeanReading(w http.ResponseWriter, r *http.Request) {
	c.single(w, r, models.QueryMetric, func(ctx context.Context, p filter.Predicate) (any, bool, error) {
		return c.service.Mean(ctx, p)
	})
}

func (c *ReadingController) MedianReading(w http.ResponseWriter, r *http.Request) {
	c.single(w, r, models.QueryMetric, func(ctx context.Context, p filter.Predicate) (any, bool, error) {
		return c.service.Median(ctx, p)
	})
}

func (c *ReadingController) QuartilesReading(w http.ResponseWriter, r *http.Request) {
	c.single(w, r, models.QueryQuartiles, func(ctx context.Context, p filter.Predicate) (any, bool, error) {
		return c.service.Quartiles(ctx, p)
	})
}

// Summary handles GET /summary/.
func (c *ReadingController) Summary(w http.ResponseWriter, r *http.Request) {
	q, ok := c.parseQuery(w, r, models.QuerySummary)
	if !ok {
		return
	}
	summaries, err := c.service.Summary(r.Context(), filter.AllDevices(q))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, summaries)
}

// Health reports whether the store answers.
func (c *ReadingController) Health(w http.ResponseWriter, r *http.Request) {
	if err := c.service.Ping(r.Context()); err != nil {
		c.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound and MethodNotAllowed keep unmatched requests in the error envelope.
func (c *ReadingController) NotFound(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeNotFound,
		fmt.Sprintf("no route for %s", r.URL.Path), nil, http.StatusNotFound))
}

func (c *ReadingController) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeMethodNotAllowed,
		fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path), nil, http.StatusMethodNotAllowed))
}

func (c *ReadingController) single(w http.ResponseWriter, r *http.Request, kind models.QueryKind, fetch func(context.Context, filter.Predicate) (any, bool, error)) {
	q, ok := c.parseQuery(w, r, kind)
	if !ok {
		return
	}
	result, found, err := fetch(r.Context(), filter.ForDevice(deviceUUID(r), q))
	if err != nil {
		c.fail(w, r, err)
		return
	}
	if !found {
		utils.RespondWithJSON(w, http.StatusOK, empty)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (c *ReadingController) parseQuery(w http.ResponseWriter, r *http.Request, kind models.QueryKind) (models.ReadingQuery, bool) {
	body, ok := c.readBody(w, r)
	if !ok {
		return models.ReadingQuery{}, false
	}
	q, err := c.validator.Query(kind, body, r.URL.Query())
	if err != nil {
		c.fail(w, r, err)
		return models.ReadingQuery{}, false
	}
	return q, true
}

func (c *ReadingController) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		c.fail(w, r, models.Malformed("error reading request body: %v", err))
		return nil, false
	}
	return body, true
}

// fail maps err to its API error and writes it. Server-side failures are
// logged here and nowhere else.
func (c *ReadingController) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		c.logger.Error("request failed",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("code", string(apiErr.Code)),
			zap.Error(err),
		)
	}
	utils.RespondWithError(w, apiErr)
}

func toAPIError(err error) models.APIError {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return models.NewAPIError(validationErr.Code, validationErr.Error(), validationErr.Problems, http.StatusUnprocessableEntity)
	case errors.Is(err, repository.ErrStorageUnavailable):
		return models.NewAPIError(models.ErrorCodeStorageUnavailable, "storage unavailable", nil, http.StatusServiceUnavailable)
	case errors.Is(err, aggregate.ErrInvariantViolation):
		return models.NewAPIError(models.ErrorCodeInvariantViolation, err.Error(), nil, http.StatusInternalServerError)
	default:
		return models.NewAPIError(models.ErrorCodeInternalServerError, "internal server error", nil, http.StatusInternalServerError)
	}
}

func deviceUUID(r *http.Request) string {
	return mux.Vars(r)["device_uuid"]
}
