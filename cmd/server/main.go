package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shelfcast/internal/advisor"
	"shelfcast/internal/cache"
	"shelfcast/internal/config"
	"shelfcast/internal/db"
	"shelfcast/internal/decision"
	"shelfcast/internal/events"
	"shelfcast/internal/handler"
	"shelfcast/internal/job"
	"shelfcast/internal/metrics"
	"shelfcast/internal/ml/artifacts"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/features"
	"shelfcast/internal/ml/inference"
	"shelfcast/internal/ml/registry"
	"shelfcast/internal/ml/training"
	"shelfcast/pkg/logger"
	"shelfcast/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "shelfcast/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	newLoggerFunc          = logger.New
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newPublisherFunc       = newDecisionPublisher
	newLLMClientFunc       = advisor.NewOpenAIClient
	metricsRegisterer      = prometheus.DefaultRegisterer
	metricsGatherer        = prometheus.DefaultGatherer
	startJobFunc           = func(ctx context.Context, start func(context.Context)) { go start(ctx) }
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Shelfcast API
// @version         1.0
// @description     Ensemble demand forecasting and inventory decisions.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	if err := loadEnvFunc(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := loadConfigFunc()

	lg, err := newLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx, tracing.Options{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTELEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		lg.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			lg.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	// Postgres is optional: without it the ensemble is read from ARTIFACT_DIR
	// and retraining is off.
	if cfg.DatabaseURL != "" {
		if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
			lg.Error().Err(err).Msg("postgres unavailable, falling back to artifact files")
		}
	}
	defer db.Close()

	var decisionCache decision.Cache
	if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
		lg.Warn().Err(err).Msg("redis unavailable, decision cache disabled")
	} else if cache.Client != nil {
		decisionCache = cache.NewDecisionCache(cache.Client, time.Duration(cfg.DecisionCacheTTLSecs)*time.Second)
	}

	recorder := metrics.New(metricsRegisterer)
	fileStore := artifacts.NewFileStore(cfg.ArtifactDir)

	var source inference.Source = fileStore
	var modelRegistry *registry.Repository
	if db.Pool != nil {
		modelRegistry = registry.NewRepository(db.Pool, tracer)
		source = modelRegistry
	}

	store := ensemble.NewStore(nil)
	loader := inference.NewLoader(tracer, source, store, recorder, lg)
	if _, err := loader.Reload(ctx); err != nil {
		lg.Warn().Err(err).Msg("no ensemble loaded at startup, decisions return 503 until a reload succeeds")
	}

	forecaster := ensemble.NewForecaster(tracer, store, cfg.MissingPredictorPolicy, lg)
	orchestrator := decision.NewOrchestrator(forecaster, decision.Options{
		NormalizeHorizon: cfg.NormalizeHorizon,
		ServiceLevelZ:    cfg.ServiceLevelZ,
		LeadTimeDays:     cfg.LeadTimeDays,
	}, lg)

	var publisher decision.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		p, err := newPublisherFunc(cfg.KafkaBrokers, cfg.KafkaDecisionTopic)
		if err != nil {
			lg.Error().Err(err).Msg("decision publisher disabled")
		} else {
			publisher = p
			defer func() {
				if err := p.Close(); err != nil {
					lg.Error().Err(err).Msg("error closing decision publisher")
				}
			}()
		}
	}

	decisions := decision.NewService(tracer, orchestrator, store.Version, decisionCache, publisher, recorder, lg)

	h := handler.New(tracer, decisions, store, lg)
	h.SetReloader(loader)
	h.SetDefaultHistoricalStd(cfg.DefaultHistoricalStd)
	if cfg.OpenAIAPIKey != "" {
		adv := advisor.NewAdvisor(tracer, newLLMClientFunc(cfg.OpenAIAPIKey), cfg.OpenAIModel)
		if cfg.AdvisorCallsPerMinute > 0 {
			adv.SetRateLimiter(advisor.NewRateLimiter(cfg.AdvisorCallsPerMinute, time.Minute/time.Duration(cfg.AdvisorCallsPerMinute)))
		}
		h.SetAdvisor(adv)
	}

	var trainer *training.Service
	if modelRegistry != nil {
		trainer = training.NewService(
			tracer,
			features.NewRepository(db.Pool, tracer),
			modelRegistry,
			loader,
			recorder,
			training.Config{
				TrainWindowDays: cfg.RetrainWindowDays,
				MinTrainSamples: cfg.MinTrainSamples,
			},
			lg,
		)
		trainer.MirrorTo(fileStore)
		h.SetTrainingRunner(trainer)
	}

	startJobFunc(ctx, job.NewReloadJob(tracer, loader, time.Duration(cfg.ReloadPollSecs)*time.Second, lg).Start)
	if trainer != nil && cfg.RetrainEnabled {
		startJobFunc(ctx, job.NewRetrainingJob(tracer, trainer, cfg.RetrainHourUTC, lg).Start)
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metricsGatherer, promhttp.HandlerOpts{})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal().Err(err).Msg("listen")
		}
	}()
	lg.Info().Str("addr", srv.Addr).Int("ensemble_version", store.Version()).Msg("server started")

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	lg.Info().Msg("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	lg.Info().Msg("server exiting")
}

type closingPublisher interface {
	decision.Publisher
	Close() error
}

func newDecisionPublisher(brokers []string, topic string) (closingPublisher, error) {
	p, err := events.NewPublisher(brokers, topic)
	if err != nil {
		return nil, err
	}
	return p, nil
}
