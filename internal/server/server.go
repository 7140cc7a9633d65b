package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/answerhub/answerhub/config"
	"github.com/answerhub/answerhub/internal/fetch"
	"github.com/answerhub/answerhub/internal/infra"
	"github.com/answerhub/answerhub/internal/llm"
	"github.com/answerhub/answerhub/internal/memory"
	"github.com/answerhub/answerhub/internal/query"
	"github.com/answerhub/answerhub/internal/synth"
	"github.com/answerhub/answerhub/internal/telemetry"
	"github.com/answerhub/answerhub/internal/validate"
)

// Server wires the question-answering pipeline behind the HTTP API.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	router    *llm.Router
	analyzer  *query.Analyzer
	planner   *query.Planner
	engine    *fetch.Engine
	synth     *synth.Synthesizer
	validator *validate.Validator
	memory    *memory.Store // nil when Postgres is unavailable
}

// Run builds all dependencies from cfg and serves until the listener stops.
func Run(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[SERVER] ", log.LstdFlags)
	ctx := context.Background()

	// Redis is optional: quota tracking and caching degrade to process
	// memory without it.
	var rdb redis.Cmdable
	if cfg.Storage.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Printf("redis unavailable (%s:%s), using in-process fallback: %v",
				cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
		} else {
			rdb = client
		}
	}

	var metrics *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		metrics = telemetry.New(prometheus.DefaultRegisterer)
	}

	quota := infra.NewQuotaTracker(rdb)
	breaker := infra.NewBreaker()
	cache := infra.NewCache(rdb)

	providers := llm.NewProviders(cfg.Providers)
	router := llm.NewRouter(providers, quota, breaker, metrics)
	validator := validate.NewValidator()

	var store *memory.Store
	if st, err := memory.New(ctx, cfg.Storage.Postgres.DSN()); err != nil {
		logger.Printf("postgres unavailable, conversation memory disabled: %v", err)
	} else {
		store = st
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		analyzer:  query.NewAnalyzer(router),
		planner:   query.NewPlanner(fetch.KnownIDs()),
		engine:    fetch.NewEngine(cfg.Upstream, cache, metrics),
		synth:     synth.New(router, validator, cache, metrics),
		validator: validator,
		memory:    store,
	}
	return s.echo().Start(cfg.Server.Address)
}

// echo assembles the HTTP surface. Split out from Run so tests can exercise
// the routes without real backends.
func (s *Server) echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	httpLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		httpLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/chat", s.handleChat)
	e.POST("/expert/:id/chat", s.handleExpertChat)
	e.POST("/search/universal", s.handleUniversalSearch)
	e.GET("/providers/status", s.handleProvidersStatus)
	e.GET("/session/:id/stats", s.handleSessionStats)

	return e
}
