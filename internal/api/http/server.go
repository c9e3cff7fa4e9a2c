package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/middlewares/server/recovery"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zereker/vectorstore/internal/service"
	"github.com/Zereker/vectorstore/pkg/log"
)

// Server represents an HTTP server
type Server struct {
	logger  *slog.Logger
	hertz   *server.Hertz
	handler *Handler
	addr    string
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MetricsPath serves Gatherer in the Prometheus text format when both are set.
	MetricsPath string
	Gatherer    prometheus.Gatherer
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MetricsPath:  "/metrics",
	}
}

// NewServer creates a new HTTP server
func NewServer(svc *service.Service, config ServerConfig) *Server {
	logger := log.Logger("http")
	handler := NewHandler(svc)
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	h := server.New(
		server.WithHostPorts(addr),
		server.WithReadTimeout(config.ReadTimeout),
		server.WithWriteTimeout(config.WriteTimeout),
		server.WithDisablePrintRoute(true),
	)
	h.Use(
		recovery.Recovery(recovery.WithRecoveryHandler(recoveryHandler(logger))),
		loggingMiddleware(logger),
		corsMiddleware(),
	)

	handler.RegisterRoutes(h)
	if config.MetricsPath != "" && config.Gatherer != nil {
		h.GET(config.MetricsPath, metricsHandler(config.Gatherer))
	}

	return &Server{
		logger:  logger,
		hertz:   h,
		handler: handler,
		addr:    addr,
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.addr)
	return s.hertz.Run()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.hertz.Shutdown(ctx)
}

func metricsHandler(g prometheus.Gatherer) app.HandlerFunc {
	var h http.Handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	return adaptor.HertzHandler(h)
}

// Middleware functions

func loggingMiddleware(logger *slog.Logger) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()

		ctx.Next(c)

		logger.Info("request",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"duration", time.Since(start).Milliseconds(),
			"remote", ctx.ClientIP(),
		)
	}
}

func recoveryHandler(logger *slog.Logger) func(c context.Context, ctx *app.RequestContext, err interface{}, stack []byte) {
	return func(c context.Context, ctx *app.RequestContext, err interface{}, stack []byte) {
		logger.Error("panic recovered", "error", err, "path", string(ctx.Path()), "stack", string(stack))
		ctx.AbortWithStatusJSON(consts.StatusInternalServerError, Response{
			Success: false,
			Error:   "internal server error",
			Kind:    "internal",
		})
	}
}

func corsMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
		ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if string(ctx.Method()) == consts.MethodOptions {
			ctx.AbortWithStatus(consts.StatusOK)
			return
		}

		ctx.Next(c)
	}
}
