package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/indexer/remote"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Relevance-Feedback-Platform/pkg/rpc"
)

const invalidateInterval = time.Second

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"data_dir", cfg.Indexer.DataDir,
		"rpc_port", cfg.Indexer.RPCPort,
		"term_vector_fields", cfg.Indexer.TermVectorFields,
	)

	engine, err := indexer.NewEngine(cfg.Indexer)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if cfg.Metrics.Enabled {
		if _, err := metrics.StartServer(ctx, cfg.Metrics.Port, registry); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
	}

	engine.StartFlushLoop(ctx, func(err error) {
		if err != nil {
			m.IndexFlushesTotal.WithLabelValues("error").Inc()
			return
		}
		m.IndexFlushesTotal.WithLabelValues("ok").Inc()
	})

	exec := executor.New(engine, cfg.Search.Field)
	srv := rpc.NewServer()
	remote.Register(srv, engine, exec, func() proto.HealthCheckResponse {
		st := engine.Stats()
		return proto.HealthCheckResponse{Status: "SERVING", DocCount: st.Docs, Segments: st.Segments}
	})
	rpcAddr := fmt.Sprintf(":%d", cfg.Indexer.RPCPort)
	go func() {
		slog.Info("index rpc listening", "addr", rpcAddr, "methods", srv.MethodCount())
		if err := srv.Serve(rpcAddr); err != nil {
			slog.Error("rpc server error", "error", err)
			stop()
		}
	}()

	if cfg.Kafka.Enabled {
		var pending atomic.Int64
		invalidations := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
		defer invalidations.Close()
		go publishInvalidations(ctx, invalidations, &pending)

		handler := consumer.HandleMessage(engine, func(context.Context, string) {
			m.DocsIndexedTotal.Inc()
			pending.Add(1)
		})
		ingest := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, "", handler)
		defer ingest.Close()
		go func() {
			if err := ingest.Start(ctx); err != nil {
				slog.Error("consumer error", "error", err)
			}
		}()
		slog.Info("consuming documents from kafka",
			"topic", cfg.Kafka.Topics.DocumentIngest,
			"group", cfg.Kafka.ConsumerGroup,
		)
	} else {
		slog.Warn("kafka disabled, index is read-only")
	}

	<-ctx.Done()
	slog.Info("shutdown signal received")
	srv.Stop()

	if err := engine.Flush(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer service stopped")
}

// publishInvalidations tells searchers to drop cached rankings at most once
// per interval while documents keep arriving.
func publishInvalidations(ctx context.Context, p *kafka.Producer, pending *atomic.Int64) {
	ticker := time.NewTicker(invalidateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := pending.Swap(0)
			if n == 0 {
				continue
			}
			event := kafka.Event{
				Key:   "invalidate",
				Value: proto.CacheInvalidation{Reason: "documents_indexed", Documents: n, At: time.Now().UTC()},
			}
			if err := p.Publish(ctx, event); err != nil {
				slog.Warn("cache invalidation not published", "documents", n, "error", err)
				pending.Add(n)
			}
		}
	}
}
