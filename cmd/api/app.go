package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/doclens/engine/internal/api/handlers"
	"github.com/doclens/engine/internal/api/middleware"
	"github.com/doclens/engine/internal/codec"
	"github.com/doclens/engine/internal/config"
	"github.com/doclens/engine/internal/embeddings"
	"github.com/doclens/engine/internal/models"
	"github.com/doclens/engine/internal/observability"
	"github.com/doclens/engine/internal/retriever"
	"github.com/doclens/engine/internal/service"
	"github.com/doclens/engine/internal/store"
	"github.com/doclens/engine/internal/workers"
	"github.com/doclens/engine/pkg/cache"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

var errUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

const (
	embeddingProviderMock   = "mock"
	embeddingProviderRemote = "remote"
	embeddingProviderOpenAI = "openai"
	embeddingProviderGoogle = "google"
)

// maxRequestBodyBytes bounds request bodies on the protected API. Ingest
// payloads are raw text plus small metadata, so 1 MiB is generous.
const maxRequestBodyBytes int64 = 1 << 20

// newEmbeddingClient builds the embedding client named by EMBEDDING_PROVIDER.
// An empty provider falls back to the deterministic mock so a fresh checkout
// runs end to end without any model credentials.
func newEmbeddingClient(cfg *config.Config) (embeddings.Client, error) {
	switch cfg.EmbeddingProvider {
	case "", embeddingProviderMock:
		slog.Warn("using deterministic mock embeddings (EMBEDDING_PROVIDER empty or \"mock\")",
			"dimensions", cfg.EmbeddingDim)

		return embeddings.NewMockClient(cfg.EmbeddingDim), nil
	case embeddingProviderRemote:
		return embeddings.NewRemoteClient(embeddings.RemoteClientConfig{
			Endpoint:   cfg.EmbeddingEndpoint,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDim,
			APIKey:     cfg.EmbeddingProviderAPIKey,
		})
	case embeddingProviderOpenAI:
		return embeddings.NewOpenAIClient(cfg.EmbeddingProviderAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	case embeddingProviderGoogle:
		return embeddings.NewGoogleAIClient(context.Background(), cfg.EmbeddingProviderAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}

// setupMetrics creates the meter provider and engine metrics when metrics are enabled.
// When NewMeterProvider returns nil (unsupported or disabled exporter), returns (nil, nil, nil).
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, *observability.Metrics, error) {
	mp, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("engine"))
	if err != nil {
		err2 := observability.ShutdownMeterProvider(context.Background(), mp)
		if err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metrics, nil
}

// NewApp builds and wires all components, ensures the database schema, and
// creates the configured collections. It does not start the HTTP server or
// River; call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err           error
		meterProvider *sdkmetric.MeterProvider
		metrics       *observability.Metrics
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var (
		searchMetrics observability.SearchMetrics
		ingestMetrics observability.IngestMetrics
		storeMetrics  observability.StoreMetrics
		cacheMetrics  observability.CacheMetrics
		httpMetrics   observability.HTTPMetrics
	)
	if metrics != nil {
		searchMetrics = metrics.Search
		ingestMetrics = metrics.Ingest
		storeMetrics = metrics.Store
		cacheMetrics = metrics.Cache
		httpMetrics = metrics.HTTP
	}

	var tracerProvider *sdktrace.TracerProvider

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			if meterProvider != nil {
				if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
					slog.Error("shutdown meter provider after tracer provider error", "error", err2)
				}
			}

			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install TraceContextHandler unconditionally so request_id (and trace_id/span_id when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	pgStore := store.NewPostgresStore(db, codec.New(), storeMetrics)

	if err := pgStore.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	for _, collection := range cfg.Collections {
		if err := pgStore.CreateCollection(ctx, collection); err != nil {
			return nil, fmt.Errorf("create collection %q: %w", collection.Name, err)
		}
	}

	embeddingClient, err := newEmbeddingClient(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.EmbeddingRateLimit > 0 {
		embeddingClient, err = embeddings.NewRateLimitedClient(embeddingClient, float64(cfg.EmbeddingRateLimit))
		if err != nil {
			return nil, fmt.Errorf("create rate limited embedding client: %w", err)
		}
	}

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewObjectEmbeddingWorker(embeddingClient, pgStore, ingestMetrics))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			service.EmbeddingsQueueName: {MaxWorkers: cfg.IngestMaxConcurrent},
		},
		Workers:     riverWorkers,
		MaxAttempts: cfg.IngestMaxAttempts,
	})
	if err != nil {
		if tracerProvider != nil {
			if err2 := observability.ShutdownTracerProvider(context.Background(), tracerProvider); err2 != nil {
				slog.Error("shutdown tracer provider after River client error", "error", err2)
			}
		}

		if meterProvider != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after River client error", "error", err2)
			}
		}

		return nil, fmt.Errorf("create River client: %w", err)
	}

	retr, err := retriever.NewRetriever(retriever.Params{
		Store:               pgStore,
		Metrics:             searchMetrics,
		Stage1K:             cfg.Stage1K,
		Stage2K:             cfg.Stage2K,
		MaxConcurrentScores: cfg.SearchMaxConcurrentScores,
	})
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}

	var queryCache *cache.LoaderCache[string, *models.TokenMatrix]

	if cfg.QueryCacheSize > 0 {
		queryCache, err = cache.New[string, *models.TokenMatrix](cfg.QueryCacheSize, nil)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
	}

	collectionNames := make([]string, 0, len(cfg.Collections))
	for _, collection := range cfg.Collections {
		collectionNames = append(collectionNames, collection.Name)
	}

	searchService, err := service.NewSearchService(service.SearchServiceParams{
		EmbeddingClient: embeddingClient,
		Retriever:       retr,
		Collections:     collectionNames,
		Weights:         cfg.CollectionWeights,
		Timeout:         cfg.SearchTimeout,
		QueryCache:      queryCache,
		CacheMetrics:    cacheMetrics,
		SearchMetrics:   searchMetrics,
		Logger:          slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}

	ingestService, err := service.NewIngestService(service.IngestServiceParams{
		Store:    pgStore,
		Inserter: riverClient,
		Metrics:  ingestMetrics,
		Logger:   slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("create ingest service: %w", err)
	}

	server := newHTTPServer(
		cfg,
		handlers.NewHealthHandler(),
		handlers.NewSearchHandler(searchService),
		handlers.NewDocumentsHandler(ingestService),
		httpMetrics,
		meterProvider, tracerProvider,
	)

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health, API key on /v1/).
// Handler chain: RequestID -> otelhttp(Metrics(Logging(mux))) so access logs get trace_id/span_id
// from context and the metrics middleware sees the final matched route pattern.
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	search *handlers.SearchHandler,
	documents *handlers.DocumentsHandler,
	httpMetrics observability.HTTPMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/search", search.Search)
	protected.HandleFunc("POST /v1/collections/{collection}/documents", documents.Submit)
	protected.HandleFunc("DELETE /v1/collections/{collection}/documents/{id}", documents.Delete)
	protected.HandleFunc("GET /v1/collections/{collection}/stats", documents.Stats)

	var protectedHandler http.Handler = protected
	protectedHandler = middleware.MaxBody(maxRequestBodyBytes, httpMetrics)(protectedHandler)
	protectedHandler = middleware.Auth(cfg.APIKey)(protectedHandler)

	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedHandler)
	mux.Handle("/", public)

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log.
	// Metrics wraps Logging because nested ServeMux matches overwrite
	// r.Pattern; after the inner mux handles the request, Pattern holds the
	// innermost matched route.
	inner := middleware.Metrics(httpMetrics)(middleware.Logging(mux))
	handler := otelhttp.NewHandler(inner, "engine-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. When ctx is cancelled or a component fails, it cancels the internal
// River context so the workers stop before Run returns. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and River in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when
// server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
