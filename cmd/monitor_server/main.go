package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/elastic/go-elasticsearch/v8"
	anomalyService "github.com/pulselog/pulselog/internal/anomaly/service"
	"github.com/pulselog/pulselog/internal/collaborator/embedding"
	"github.com/pulselog/pulselog/internal/collaborator/llm"
	"github.com/pulselog/pulselog/internal/config"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/bootstrapper"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/cache"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/client"
	"github.com/pulselog/pulselog/internal/hub"
	kpiService "github.com/pulselog/pulselog/internal/kpi/service"
	logstoreModel "github.com/pulselog/pulselog/internal/logstore/model"
	logstoreService "github.com/pulselog/pulselog/internal/logstore/service"
	"github.com/pulselog/pulselog/internal/metrics"
	pipelineService "github.com/pulselog/pulselog/internal/pipeline/service"
	"github.com/pulselog/pulselog/internal/query_server/router"
	vectorService "github.com/pulselog/pulselog/internal/vector/service"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second
const recentLogsCacheCap = 100

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Elasticsearch.URL},
	})
	if err != nil {
		logger.Fatal("Failed to create elasticsearch client", zap.Error(err))
	}

	bs := bootstrapper.NewBootstrapper(es, cfg.Embedding.Dimension, logger)
	if err := bs.BootstrapElasticsearch(); err != nil {
		logger.Fatal("Failed to bootstrap elasticsearch", zap.Error(err))
	}

	pc := client.NewPulseClientImpl(es, client.Async)

	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     100_000,
		BufferItems: 64,
	})
	if err != nil {
		logger.Fatal("Failed to create cache", zap.Error(err))
	}

	buffer := cache.NewWriteBehindBuffer[logstoreModel.StoredLog](
		ristrettoCache,
		pc,
		bootstrapper.LogIndexName,
		cfg.Store.FlushThreshold,
		recentLogsCacheCap,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go buffer.StartPeriodicFlush(ctx, cfg.Store.FlushInterval)

	logStore := logstoreService.NewLogStoreImpl(pc, buffer, logger)
	vectorStore := vectorService.NewVectorStoreImpl(pc, logger)

	analyzer := llm.NewGroqAnalyzer(
		cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout, logger)
	embedder := embedding.NewHttpEmbedder(
		cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension,
		cfg.Embedding.Timeout, logger)

	aggregator := kpiService.NewAggregator(logger)
	detector := anomalyService.NewDetector(cfg.Anomaly.ZThreshold, cfg.Anomaly.MinSamples, logger)
	broadcastHub := hub.NewBroadcastHub(cfg.Hub.QueueSize, cfg.Hub.HeartbeatTimeout, logger)
	counters := metrics.New()

	orchestrator := pipelineService.NewOrchestrator(
		aggregator,
		detector,
		analyzer,
		embedder,
		logStore,
		vectorStore,
		broadcastHub,
		counters,
		cfg.LLM.Timeout,
		cfg.Embedding.Timeout,
		logger,
	)
	generator := pipelineService.NewGenerator(time.Now().UnixNano())

	broadcaster := kpiService.NewBroadcaster(aggregator, broadcastHub, cfg.Hub.KPIInterval, logger)
	go broadcaster.Run(ctx)

	r := router.CreateRouter(
		ctx,
		orchestrator,
		generator,
		aggregator,
		logStore,
		embedder,
		vectorStore,
		broadcastHub,
		logger,
	)

	server := &http.Server{
		Addr:    cfg.App.Host + ":" + cfg.App.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Starting monitor server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server cleanly", zap.Error(err))
	}
	broadcastHub.Shutdown()
	if err := buffer.Flush(shutdownCtx); err != nil {
		logger.Error("Failed to flush write buffer", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
