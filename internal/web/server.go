// Package web serves navigation results as JSON over HTTP.
package web

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thiagokokada/revlog/internal/buildinfo"
	"github.com/thiagokokada/revlog/internal/nav"
	"github.com/thiagokokada/revlog/internal/vcs"
)

const RequestIDHeader = "X-Request-ID"

type Options struct {
	Logger *zap.Logger
	// Registry collects the request counters and backs /metrics. A nil
	// registry disables both.
	Registry *prometheus.Registry
}

type Server struct {
	app      *fiber.App
	nav      *nav.Navigator
	log      *zap.Logger
	requests *prometheus.CounterVec
}

func New(n *nav.Navigator, opts Options) *Server {
	s := &Server{nav: n, log: opts.Logger}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	var reg prometheus.Registerer
	if opts.Registry != nil {
		reg = opts.Registry
	}
	s.requests = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "revlog",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	// Immutable copies params and query values out of the request buffer,
	// since they end up in cache keys and cached values.
	s.app = fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		ServerHeader:          buildinfo.ServerHeader(),
		UnescapePath:          true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestID, s.accessLog)

	s.app.Get("/healthz", s.health)
	if opts.Registry != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}
	api := s.app.Group("/api")
	api.Get("/changes", s.changes)
	api.Get("/revisions/:id", s.revision)
	api.Get("/revisions/:id/scan", s.scan)
	api.Get("/diff/:id/*", s.diff)
	api.Get("/annotate/:id/*", s.annotate)
	api.Get("/files/:id", s.files)
	api.Get("/files/:id/*", s.files)
	api.Get("/compare/:base/:id", s.compare)
	api.Get("/compare/:base/:id/*", s.compareDiff)
	api.Get("/search", s.search)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.log.Info("Serving history", zap.String("listen", addr), zap.String("version", buildinfo.Version()))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestID(c *fiber.Ctx) error {
	id := c.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(RequestIDHeader, id)
	c.Locals(RequestIDHeader, id)
	return c.Next()
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	status := c.Response().StatusCode()
	route := c.Route().Path
	s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	s.log.Info("HTTP request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
		zap.Any("request_id", c.Locals(RequestIDHeader)),
	)
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps an error to the HTTP status reported for it.
func StatusFor(err error) int {
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code
	}
	switch vcs.KindOf(err) {
	case vcs.KindNotFound:
		return fiber.StatusNotFound
	case vcs.KindUnavailable:
		return fiber.StatusUnprocessableEntity
	case vcs.KindBackendIO:
		return fiber.StatusBadGateway
	case vcs.KindCanceled:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := StatusFor(err)
	kind := vcs.KindOf(err).String()
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		kind = "request"
	}
	if status >= fiber.StatusInternalServerError {
		s.log.Error("Request failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(errorBody{Error: kind, Message: err.Error()})
}
