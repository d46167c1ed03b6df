package routes

import (
	"net/http"

	"CapIot.readings/internal/controller"
	"CapIot.readings/internal/middleware"
	"CapIot.readings/internal/observability"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RegisterRoutes registers all application routes on router. Paths are
// matched exactly, trailing slash included. /metrics is only served when
// metrics is non-nil.
func RegisterRoutes(router *mux.Router, c *controller.ReadingController, metrics *observability.Metrics, logger *zap.Logger) {
	router.Use(middleware.Instrument(logger, metrics))

	// Readings
	const readings = "/devices/{device_uuid}/readings"
	router.HandleFunc(readings+"/", c.CreateReading).Methods(http.MethodPost)
	router.HandleFunc(readings+"/", c.ListReadings).Methods(http.MethodGet)
	router.HandleFunc(readings+"/min/", c.MinReading).Methods(http.MethodGet)
	router.HandleFunc(readings+"/max/", c.MaxReading).Methods(http.MethodGet)
	router.HandleFunc(readings+"/mean/", c.MeanReading).Methods(http.MethodGet)
	router.HandleFunc(readings+"/median/", c.MedianReading).Methods(http.MethodGet)
	router.HandleFunc(readings+"/quartiles/", c.QuartilesReading).Methods(http.MethodGet)

	// Cross-device summary
	router.HandleFunc("/summary/", c.Summary).Methods(http.MethodGet)

	// Operations
	router.HandleFunc("/health", c.Health).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	router.NotFoundHandler = middleware.Instrument(logger, metrics)(http.HandlerFunc(c.NotFound))
	router.MethodNotAllowedHandler = middleware.Instrument(logger, metrics)(http.HandlerFunc(c.MethodNotAllowed))
}

// NewRouter builds the application router.
func NewRouter(c *controller.ReadingController, metrics *observability.Metrics, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	RegisterRoutes(router, c, metrics, logger)
	return router
}
