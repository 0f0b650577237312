package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmehdipour/zoohub/internal/config"
	"github.com/jmehdipour/zoohub/internal/http/middleware"
	"github.com/jmehdipour/zoohub/internal/ingest"
	"github.com/jmehdipour/zoohub/internal/metrics"
	"github.com/jmehdipour/zoohub/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Deps groups the repositories handlers read from directly.
type Deps struct {
	Events repository.EventsRepository
	Jobs   repository.JobsRepository
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	producersRepo := repository.NewProducersRepository(mysqlDB)
	eventsRepo := repository.NewEventsRepository(mysqlDB)
	rulesRepo := repository.NewRulesRepository(mysqlDB)
	jobsRepo := repository.NewJobsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	circuitsRepo := repository.NewCircuitsRepository(mysqlDB)

	// repos (ClickHouse)
	chAttemptsRepo := repository.NewCHAttemptsRepository(clickhouseDB)

	// services
	ingestSvc := ingest.NewService(mysqlDB, eventsRepo, outboxRepo, cfg.Kafka.Topic)

	deps := Deps{Events: eventsRepo, Jobs: jobsRepo}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(producersRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		KeyPrefix:      "rl:prod:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/events", ingestEventHandler(ingestSvc))
	v1.GET("/events/:id", getEventHandler(deps))

	v1.POST("/rules", createRuleHandler(rulesRepo))
	v1.GET("/rules", listRulesHandler(rulesRepo))
	v1.GET("/rules/:id", getRuleHandler(rulesRepo))
	v1.PATCH("/rules/:id", updateRuleHandler(rulesRepo))

	v1.GET("/reports/attempts", listAttemptsHandler(chAttemptsRepo))

	v1.GET("/admin/circuits", listCircuitsHandler(circuitsRepo))
	v1.POST("/admin/circuits/:key/reset", resetCircuitHandler(circuitsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
