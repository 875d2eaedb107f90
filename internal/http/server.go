package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/config"
	"github.com/Thetimii/dashboard-sub001/internal/dispatcher"
	"github.com/Thetimii/dashboard-sub001/internal/http/middleware"
	"github.com/Thetimii/dashboard-sub001/internal/metrics"
	"github.com/Thetimii/dashboard-sub001/internal/model"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, ev model.LifecycleEvent) (model.DispatchOutcome, error)
}

// Publisher hands envelopes to the asynchronous worker. Optional.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

type ProviderStatus interface {
	Status() []dispatcher.ProviderStatus
}

type Deps struct {
	Router     Dispatcher
	Publisher  Publisher
	Providers  ProviderStatus
	Conversion interface{ Configured() bool } // nil when reporting is disabled
	Redis      *redis.Client
	Logger     *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(cfg config.Config, deps Deps) *Server {
	lg := deps.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.RequestID())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h := &handlers{deps: deps, log: lg}

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/healthz/providers", h.providers)

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Auth.APIKeys)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "onboard:rl:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/events", h.dispatch)
	v1.POST("/events/async", h.enqueue)

	return &Server{e: e, log: lg}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
