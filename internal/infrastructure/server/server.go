// Package server wires configuration into the running service: logger,
// metrics, circuit breaker, downstream client, result store, worker pool and
// the HTTP router.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/queueworks/taskgate/internal/api/http"
	"github.com/queueworks/taskgate/internal/api/middleware"
	"github.com/queueworks/taskgate/internal/downstream"
	"github.com/queueworks/taskgate/internal/infrastructure/config"
	"github.com/queueworks/taskgate/internal/infrastructure/logging"
	"github.com/queueworks/taskgate/internal/infrastructure/monitoring"
	"github.com/queueworks/taskgate/internal/infrastructure/resilience"
	"github.com/queueworks/taskgate/internal/infrastructure/tracing"
	"github.com/queueworks/taskgate/internal/pool"
	"github.com/queueworks/taskgate/internal/result"
)

// Server wraps the HTTP server and its dependencies
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	pool    *pool.Pool
	results result.Store
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics

	closer func() // releases the downstream client, if it holds resources
}

// NewServer creates a fully wired server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("Initializing taskgate",
		zap.String("port", cfg.Server.Port),
		zap.String("downstream_mode", cfg.Downstream.Mode),
		zap.String("results_backend", cfg.Results.Backend),
		zap.Int("workers", cfg.Pool.Workers),
		zap.Int("queue_capacity", cfg.Pool.QueueCapacity),
	)

	metrics := monitoring.New()

	breaker := resilience.New("downstream", resilience.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetCircuitOpen(to == resilience.StateOpen)
		},
	})

	client, closer, err := newDownstreamClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	guard := downstream.NewGuard(client, breaker, cfg.Downstream.CallTimeout)

	results, err := newResultStore(cfg)
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}

	workerPool := pool.New(pool.Config{
		Workers:          cfg.Pool.Workers,
		QueueCapacity:    cfg.Pool.QueueCapacity,
		Retry:            pool.RetryPolicy{MaxRetries: cfg.Pool.MaxRetries, Base: cfg.Pool.BackoffBase},
		AdmissionTimeout: cfg.Admission.Timeout,
	}, guard, results, metrics, logger)

	admission := pool.AdmitNonBlocking
	if cfg.Admission.Mode == config.AdmissionTimed {
		admission = pool.AdmitTimed
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	tracer := tracing.New("taskgate", logger.Logger)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Int("global_rps", cfg.RateLimit.GlobalRPS),
			zap.Int("global_burst", cfg.RateLimit.GlobalBurst),
		)
		router.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.GlobalRPS,
			Burst:             cfg.RateLimit.GlobalBurst,
		}))
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(workerPool, results, logger, admission, cfg.Admission.RetryAfter)

	router.POST("/process", handlers.SubmitTask)
	router.GET("/result/:id", handlers.GetResult)
	router.GET("/health", handlers.Health)
	router.GET("/ready", handlers.Ready)
	router.GET("/cache", handlers.Cached)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	workerPool.Start()
	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		pool:    workerPool,
		results: results,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		closer:  closer,
	}, nil
}

// Router exposes the gin engine, used by tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until Shutdown is called
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then stops the pool, waiting for
// in-flight tasks bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var firstErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown failed", zap.Error(err))
			firstErr = err
		}
	}

	if err := s.pool.Stop(ctx); err != nil {
		s.logger.Error("Worker pool shutdown failed", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := s.results.Close(); err != nil {
		s.logger.Error("Result store close failed", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	if s.closer != nil {
		s.closer()
	}

	_ = s.logger.Sync()
	return firstErr
}

// newDownstreamClient selects the downstream implementation at construction
// time; nothing downstream of here branches on the mode again.
func newDownstreamClient(cfg *config.Config, logger *logging.Logger) (downstream.Client, func(), error) {
	switch cfg.Downstream.Mode {
	case config.DownstreamSimulated:
		simCfg := downstream.DefaultSimulatedConfig()
		simCfg.FailRate = cfg.Downstream.FailRate
		return downstream.NewSimulated(simCfg), nil, nil

	case config.DownstreamPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Downstream.CallTimeout)
		defer cancel()
		pg, err := downstream.NewPostgres(ctx, cfg.Downstream.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres downstream: %w", err)
		}
		logger.Info("Connected to postgres downstream")
		return pg, func() { _ = pg.Close() }, nil

	case config.DownstreamHTTP:
		logger.Info("Using HTTP downstream", zap.String("url", cfg.Downstream.TargetURL))
		return downstream.NewHTTP(cfg.Downstream.TargetURL), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown downstream mode %q", cfg.Downstream.Mode)
	}
}

func newResultStore(cfg *config.Config) (result.Store, error) {
	switch cfg.Results.Backend {
	case config.ResultsMemory:
		return result.NewMemoryStore(), nil

	case config.ResultsRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := result.NewRedisStore(ctx, cfg.Results.RedisAddr, cfg.Results.RedisPassword, cfg.Results.RedisDB, cfg.Results.TTL)
		if err != nil {
			return nil, fmt.Errorf("redis result store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown results backend %q", cfg.Results.Backend)
	}
}
