package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterConfig carries everything NewRouter wires
type RouterConfig struct {
	Analytics   *AnalyticsHandler
	Upload      *UploadHandler
	Health      *HealthHandler
	CORSOrigins []string
	StaticDir   string // served at / when set
	Logger      *logrus.Logger
}

// NewRouter builds the HTTP routes of the service
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Total-Records"},
		AllowCredentials: true,
	}))

	r.Get("/health", cfg.Health.GetHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/upload", cfg.Upload.PostUpload)
	r.Get("/uploads", cfg.Upload.GetUploads)

	a := cfg.Analytics
	r.Get("/filter-options/{cacheKey}", a.GetFilterOptions)
	r.Post("/analytics/{cacheKey}", a.PostOverview)
	r.Post("/kpi-data/{cacheKey}", a.PostKPI)
	r.Post("/train-analytics/{cacheKey}", a.PostTrainAnalytics)
	r.Post("/day-analysis/{cacheKey}", a.PostDayAnalysis)
	r.Post("/timeline/{cacheKey}", a.PostTimeline)
	r.Post("/train-timeline/{cacheKey}", a.PostTrainTimeline)
	r.Post("/train-incidents/{cacheKey}", a.PostTrainIncidents)
	r.Post("/train-list/{cacheKey}", a.PostTrainList)
	r.Get("/train-search/{cacheKey}", a.GetTrainSearch)
	r.Post("/table/{cacheKey}", a.PostTable)
	r.Post("/export-data/{cacheKey}", a.PostExport)

	// Static file serving (if configured)
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}

// requestLogger logs one line per request at debug level, warnings for 5xx
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("Request failed")
				return
			}
			entry.Debug("Request served")
		})
	}
}
