// Package server exposes the HTTP API and runs the ingestion scheduler.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/casewatch/internal/ingest"
	"github.com/mohammad-safakhou/casewatch/internal/quota"
	"github.com/mohammad-safakhou/casewatch/internal/query"
	"github.com/mohammad-safakhou/casewatch/internal/runtime"
	"github.com/mohammad-safakhou/casewatch/internal/store"
	"github.com/mohammad-safakhou/casewatch/models"
	"golang.org/x/time/rate"
)

// Server routes API requests to the query path, the session registry and the collections.
type Server struct {
	echo        *echo.Echo
	query       *query.Service
	sessions    *quota.Registry
	pipeline    *ingest.Pipeline
	collections store.CollectionStore
	indexes     *indexCache
	secret      []byte
	sessionTTL  time.Duration
	logger      *log.Logger
}

// Options carries what the HTTP layer needs beyond the App.
type Options struct {
	SessionSecret string
	SessionTTL    time.Duration
	AllowOrigins  []string
	Metrics       http.Handler
	Debug         bool

	// AdminToken is the bearer credential for operator routes. Empty rejects every caller.
	AdminToken string
	// SessionsPerMinute and SessionBurst throttle session creation per client address.
	SessionsPerMinute float64
	SessionBurst      int
}

// New builds the echo instance and registers every route.
func New(app *App, opts Options) *Server {
	s := &Server{
		echo:        echo.New(),
		query:       app.Query,
		sessions:    app.Sessions,
		pipeline:    app.Pipeline,
		collections: app.Backends.Collections,
		indexes:     newIndexCache(),
		secret:      []byte(opts.SessionSecret),
		sessionTTL:  opts.SessionTTL,
		logger:      log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
	e := s.echo
	e.HideBanner = true
	e.Debug = opts.Debug
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.Recover())
	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Cookie"},
		AllowCredentials: true,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Printf("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency.Round(time.Millisecond))
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opts.Metrics))
	}

	api := e.Group("/api")
	api.POST("/sessions", s.createSession, sessionThrottle(opts.SessionsPerMinute, opts.SessionBurst)...)
	authed := api.Group("", s.requireSession)
	authed.GET("/sessions", s.getSession)
	authed.DELETE("/sessions", s.endSession)
	authed.POST("/analyze", s.analyze)

	api.GET("/collections/:name", s.listRecords)
	api.GET("/collections/:name/tags", s.tagCounts)
	api.GET("/collections/:name/search", s.searchRecords)
	api.POST("/ingest", s.runIngest, requireOperator(opts.AdminToken))
	return s
}

// requireOperator accepts only "Authorization: Bearer <admin token>".
func requireOperator(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, c echo.Context) (bool, error) {
			if token == "" {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "operator credential required")
		},
	})
}

func sessionThrottle(perMinute float64, burst int) []echo.MiddlewareFunc {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perMinute / 60),
		Burst:     burst,
		ExpiresIn: 10 * time.Minute,
	})
	return []echo.MiddlewareFunc{middleware.RateLimiter(limiter)}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	s.logger.Printf("listening on %s", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// errorHandler renders every failure as {"error": msg} with the status its kind maps to.
func (s *Server) errorHandler(err error, c echo.Context) {
	code, msg := statusFor(err)
	req := c.Request()
	s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if !c.Response().Committed {
		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}
	var ce *models.CollaboratorError
	switch {
	case errors.Is(err, query.ErrEmptySubject):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, models.ErrCollaboratorTimeout):
		return http.StatusGatewayTimeout, "analysis timed out"
	case errors.As(err, &ce):
		return http.StatusBadGateway, "analysis failed"
	case errors.Is(err, models.ErrCollaboratorDisabled):
		return http.StatusServiceUnavailable, "analysis is not configured"
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, runtime.ErrMissingToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, ingest.ErrRunInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ingest.ErrUnknownCollection):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable, "storage unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}
