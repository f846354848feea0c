package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/judgment"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/model"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/query"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/feedback/rerank"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/remote"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/tokenizer"
	ingestion "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/resilience"
)

const (
	snapshotInterval = 5 * time.Minute
	connectTimeout   = 5 * time.Second
)

// index is what the searcher needs from either a local engine or a remote
// indexer.
type index interface {
	feedback.Index
	handler.FirstPass
	rerank.Searcher
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"default_model", cfg.Feedback.Model,
		"index_addr", cfg.Search.IndexAddr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)
	if cfg.Metrics.Enabled {
		if _, err := metrics.StartServer(ctx, cfg.Metrics.Port, promRegistry); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
	}

	checker := health.NewChecker()

	var idx index
	var engine *indexer.Engine
	if cfg.Search.IndexAddr != "" {
		client, err := remote.Dial(remote.ClientConfig{
			Addr:    cfg.Search.IndexAddr,
			Timeout: cfg.Search.RPCTimeout,
			Breaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(_ string, _, to resilience.State) {
					m.IndexBreakerState.Set(float64(to))
				},
			},
			OnRetry: func(method string, _ error) {
				m.IndexRPCRetries.WithLabelValues(method).Inc()
			},
		})
		if err != nil {
			slog.Error("failed to connect to indexer", "addr", cfg.Search.IndexAddr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		idx = client
		checker.Register("index", health.PingCheck(client.Ping, health.StatusDown))
		slog.Info("using remote index", "addr", cfg.Search.IndexAddr)
	} else {
		engine, err = indexer.NewEngine(cfg.Indexer)
		if err != nil {
			slog.Error("failed to open index", "error", err)
			os.Exit(1)
		}
		defer engine.Close()
		engine.StartFlushLoop(ctx, nil)
		idx = localIndex{Engine: engine, Executor: executor.New(engine, cfg.Search.Field)}
		checker.Register("index", func(context.Context) health.ComponentHealth {
			st := engine.Stats()
			if st.Docs == 0 {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "index is empty"}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d docs in %d segments", st.Docs, st.Segments)}
		})
		slog.Info("using local index", "data_dir", cfg.Indexer.DataDir)
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := connect(ctx, func(c context.Context) (*pkgredis.Client, error) {
			return pkgredis.NewClient(c, cfg.Redis)
		})
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			checker.Register("redis", health.PingCheck(redisClient.Ping, health.StatusDegraded))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var judgments handler.Judgments
	var history analytics.History
	var snapshots *snapshot.Store
	var registry publisher.Registry
	if cfg.Postgres.Enabled {
		db, err := connect(ctx, func(c context.Context) (*postgres.Client, error) {
			return postgres.New(c, cfg.Postgres)
		})
		if err != nil {
			slog.Warn("postgres unavailable, judged models and analytics history disabled", "error", err)
		} else {
			defer db.Close()
			store := judgment.NewStore(db)
			snapshots = snapshot.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Error("judgment schema", "error", err)
				os.Exit(1)
			}
			if err := snapshots.EnsureSchema(ctx); err != nil {
				slog.Error("snapshot schema", "error", err)
				os.Exit(1)
			}
			documents := publisher.NewPostgresRegistry(db)
			if err := documents.EnsureSchema(ctx); err != nil {
				slog.Error("document registry schema", "error", err)
				os.Exit(1)
			}
			registry = documents
			judgments = store
			history = snapshots
			checker.Register("postgres", health.PingCheck(db.Ping, health.StatusDegraded))
		}
	}

	aggregator := analytics.NewAggregator()
	var eventSink analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Reformulations)
		defer producer.Close()
		eventSink = producer

		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Reformulations, cfg.Kafka.ConsumerGroup+"-analytics", analytics.HandleEvent(aggregator))
		defer events.Close()
		go func() {
			if err := events.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		if queryCache != nil {
			// Every searcher drops its own cache, so each gets its own group.
			group := fmt.Sprintf("%s-invalidate-%s", cfg.Kafka.ConsumerGroup, middleware.NewRequestID())
			invalidations := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate, group, cache.HandleInvalidation(queryCache))
			defer invalidations.Close()
			go func() {
				if err := invalidations.Start(ctx); err != nil {
					slog.Error("invalidation consumer error", "error", err)
				}
			}()
		}
	}
	collector := analytics.NewCollector(eventSink, 10000, 100, time.Second)
	collector.Start(ctx)
	defer collector.Close()
	if snapshots != nil {
		snapshots.StartPeriodicSave(ctx, aggregator, snapshotInterval)
	}

	rerankers, err := buildRerankers(cfg, idx, m, collector)
	if err != nil {
		slog.Error("failed to build feedback models", "error", err)
		os.Exit(1)
	}
	tieBreak, _ := feedback.ParseTieBreak(cfg.Feedback.TieBreak)

	h := handler.New(idx, rerankers, judgments, queryCache, handler.Options{
		DefaultModel: cfg.Feedback.Model,
		TieBreak:     tieBreak,
		FbDocs:       cfg.Feedback.FbDocs,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Tracker:      handler.Trackers{handler.MetricsTracker{Metrics: m}, collector},
	})
	analyticsH := analytics.NewHandler(aggregator, history)

	mux := http.NewServeMux()
	h.Register(mux)
	if sink := ingestSink(cfg, engine, queryCache, m); sink != nil {
		ingestion.New(publisher.New(sink, registry), cfg.Search.Field).Register(mux)
	} else {
		slog.Warn("document ingestion disabled: remote index and kafka disabled")
	}
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Search.Timeout)(chain)
	if cfg.Tracing.Enabled {
		chain = middleware.Tracing(cfg.Tracing.SampleRate)(chain)
	}
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(ratelimit.New(ctx, cfg.Server.RateLimit, cfg.Server.RateWindow))(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins...))(chain)
	}
	chain = middleware.Metrics(m, mux)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "models", len(rerankers))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// connect runs dial under connectTimeout.
func connect[T any](ctx context.Context, dial func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return dial(ctx)
}

// localIndex serves statistics from the engine and queries from the
// executor over the same engine.
type localIndex struct {
	*indexer.Engine
	*executor.Executor
}

// ingestSink indexes documents in-process when the engine is local and
// publishes them to the ingest topic otherwise.
func ingestSink(cfg *config.Config, engine *indexer.Engine, queryCache *cache.QueryCache, m *metrics.Metrics) publisher.Sink {
	if engine != nil {
		return publisher.HandlerSink{Handle: consumer.HandleMessage(engine, func(ctx context.Context, _ string) {
			m.DocsIndexedTotal.Inc()
			if queryCache != nil {
				if err := queryCache.Invalidate(ctx); err != nil {
					slog.Warn("cache invalidation after ingest failed", "error", err)
				}
			}
		})}
	}
	if cfg.Kafka.Enabled {
		// Closed on process exit.
		return kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	}
	return nil
}

// buildRerankers creates one reranker per supported model, all sharing the
// configured feedback options.
func buildRerankers(cfg *config.Config, idx index, m *metrics.Metrics, observer query.Observer) (map[string]*rerank.Reranker, error) {
	fbCfg := feedback.FromConfig(cfg.Feedback)
	if err := fbCfg.Validate(); err != nil {
		return nil, err
	}
	params := model.ParamsFromConfig(cfg.Feedback)
	tieBreak, err := feedback.ParseTieBreak(cfg.Feedback.TieBreak)
	if err != nil {
		return nil, err
	}
	field := cfg.Feedback.Field
	if field == "" {
		field = cfg.Search.Field
	}
	events := feedback.NewMetricEvents(feedback.NewLogEvents(nil), m.FeedbackDegradations)
	observers := query.Observers{query.NewLogObserver(nil), observer}
	analyzer := tokenizer.Analyzer{}

	rerankers := make(map[string]*rerank.Reranker, len(model.Kinds()))
	for _, kind := range model.Kinds() {
		est, err := model.New(kind, analyzer, fbCfg, params, events)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", kind, err)
		}
		rerankers[kind] = rerank.New(idx, analyzer, idx, est, rerank.Options{
			Field:                field,
			Config:               fbCfg,
			TieBreak:             tieBreak,
			RestrictToCandidates: cfg.Feedback.RestrictToCandidates,
			Workers:              cfg.Feedback.Workers,
			Events:               events,
			Observer:             observers,
			Recorder:             m,
		})
	}
	return rerankers, nil
}
