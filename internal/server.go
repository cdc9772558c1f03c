package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/multierr"

	"github.com/2beens/blogposts/internal/config"
	"github.com/2beens/blogposts/internal/db"
	"github.com/2beens/blogposts/internal/middleware"
	"github.com/2beens/blogposts/internal/posts"
	"github.com/2beens/blogposts/internal/telemetry/metrics"
	"github.com/2beens/blogposts/internal/telemetry/tracing"
	"github.com/2beens/blogposts/pkg"
)

const (
	serviceName         = "blogposts"
	shutdownMaxWait     = 15 * time.Second
	rateLimitKeyPrefix  = "blogposts-write"
	storeConnectTimeout = 10 * time.Second
	postCacheExpire     = 10 * time.Minute
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config

	// document store, one of the handles below backs the repo
	repo        posts.Repo
	mongoClient *mongo.Client
	dbPool      *pgxpool.Pool

	redisClient *redis.Client

	// telemetry
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	s := &Server{
		config:       params.Config,
		versionInfo:  params.VersionInfo,
		otelShutdown: func() {},
	}

	if params.Config.RateLimitEnabled() {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
			Password: params.RedisPassword,
			DB:       0, // use default DB
		})

		rdbStatus := s.redisClient.Ping(ctx)
		if err := rdbStatus.Err(); err != nil {
			log.Errorf("--> failed to ping redis: %s", err)
		} else {
			log.Debugf("redis ping: %s", rdbStatus.Val())
		}
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, serviceName, s.redisClient)
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("honeycomb setup: %w", err)
	}
	s.otelShutdown = otelShutdown

	var extraCollectors []prometheus.Collector
	switch params.Config.StoreDriver {
	case config.StoreDriver.Mongo:
		s.mongoClient, err = db.NewMongoClient(ctx, db.NewMongoClientParams{
			URI:            params.Config.MongoURI,
			AppName:        serviceName,
			ConnectTimeout: storeConnectTimeout,
		})
		if err != nil {
			s.closeStores()
			return nil, fmt.Errorf("new mongo client: %w", err)
		}
		s.repo = posts.NewMongoRepo(s.mongoClient, params.Config.MongoDBName)
	case config.StoreDriver.Postgres:
		s.dbPool, err = db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         params.Config.PostgresHost,
			DBPort:         params.Config.PostgresPort,
			DBName:         params.Config.PostgresDBName,
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			s.closeStores()
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := db.EnsurePostsTable(ctx, s.dbPool); err != nil {
			s.closeStores()
			return nil, err
		}
		extraCollectors = append(extraCollectors, pgxpoolprometheus.NewCollector(
			s.dbPool,
			map[string]string{"db_name": params.Config.PostgresDBName},
		))
		s.repo = posts.NewPsqlRepo(s.dbPool)
	case config.StoreDriver.Memory:
		log.Warnln("using in-memory posts store, posts are lost on shutdown")
		s.repo = posts.NewMemoryRepo()
	default:
		s.closeStores()
		return nil, fmt.Errorf("unknown store driver: %s", params.Config.StoreDriver)
	}
	log.Debugf("using store driver: %s", params.Config.StoreDriver)

	if params.Config.PostCacheSizeMB > 0 {
		s.repo = posts.NewCachedRepo(s.repo, params.Config.PostCacheSizeMB, postCacheExpire)
		log.Debugf("posts cache enabled: %dMB", params.Config.PostCacheSizeMB)
	}

	s.promRegistry = metrics.SetupPrometheus(extraCollectors...)
	s.metricsManager = metrics.NewManager("blogposts", "main", s.promRegistry)

	return s, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("blogposts-router"))

	var writeMiddlewares []mux.MiddlewareFunc
	if s.config.RateLimitEnabled() && s.redisClient != nil {
		writeMiddlewares = append(writeMiddlewares, middleware.RateLimit(
			redis_rate.NewLimiter(s.redisClient),
			rateLimitKeyPrefix,
			s.config.WriteRateLimitAllowedPerMin,
			s.metricsManager,
		))
	}

	postsHandler := posts.NewHandler(s.repo, s.metricsManager)
	postsHandler.SetupRoutes(r, writeMiddlewares...)

	r.HandleFunc("/health", s.handleHealth).Methods("GET").Name("health")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

// handleHealth pings the document store, and redis when the rate limiter uses it
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		log.Errorf("health: store ping: %s", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			log.Errorf("health: redis ping: %s", err)
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	pkg.WriteTextResponseOK(w, "ok")
}

func (s *Server) Serve(host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.routerSetup(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof(" > server [%s] listening on: [%s]", s.versionInfo, ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")
	s.metricsManager.GaugeLifeSignal.Set(0)

	ctx, timeoutCancel := context.WithTimeout(context.Background(), shutdownMaxWait)
	defer timeoutCancel()

	// stop accepting requests first, stores are closed after in-flight ones finish
	var err error
	if s.httpServer != nil {
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("http server shutdown: %w", shutdownErr))
		}
		log.Warnln("server shut down")
	}
	if s.metricsHttpServer != nil {
		if shutdownErr := s.metricsHttpServer.Shutdown(ctx); shutdownErr != nil {
			err = multierr.Append(err, fmt.Errorf("metrics http server shutdown: %w", shutdownErr))
		}
		log.Warnln("metrics server shut down")
	}

	err = multierr.Append(err, s.closeStores())

	s.otelShutdown()
	log.Trace("otel shut down ...")

	for _, e := range multierr.Errors(err) {
		log.Errorf(" >>> shutdown: %s", e)
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}

// closeStores releases every opened store and redis handle
func (s *Server) closeStores() error {
	var err error

	if s.redisClient != nil {
		if closeErr := s.redisClient.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close redis client: %w", closeErr))
		}
		s.redisClient = nil
	}

	if s.mongoClient != nil {
		log.Debugln("disconnecting mongo client ...")
		ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
		if discErr := s.mongoClient.Disconnect(ctx); discErr != nil {
			err = multierr.Append(err, fmt.Errorf("mongo disconnect: %w", discErr))
		}
		cancel()
		s.mongoClient = nil
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
		s.dbPool = nil
	}

	return err
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
