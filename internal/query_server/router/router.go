package router

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulselog/pulselog/internal/collaborator/embedding"
	"github.com/pulselog/pulselog/internal/hub"
	kpiService "github.com/pulselog/pulselog/internal/kpi/service"
	logstoreService "github.com/pulselog/pulselog/internal/logstore/service"
	pipelineService "github.com/pulselog/pulselog/internal/pipeline/service"
	"github.com/pulselog/pulselog/internal/query_server/handler"
	"github.com/pulselog/pulselog/internal/query_server/websocket"
	vectorService "github.com/pulselog/pulselog/internal/vector/service"
	"go.uber.org/zap"
)

func CreateRouter(
	ctx context.Context,
	orchestrator pipelineService.Orchestrator,
	generator *pipelineService.Generator,
	aggregator kpiService.Aggregator,
	logStore logstoreService.LogStore,
	embedder embedding.Embedder,
	vectorStore vectorService.VectorStore,
	broadcastHub *hub.BroadcastHub,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(
		"/logs", handler.IngestHandler(
			ctx,
			orchestrator,
			logger,
		),
	).Methods("POST")

	r.Handle(
		"/logs/generate", handler.GenerateHandler(
			ctx,
			orchestrator,
			generator,
			logger,
		),
	).Methods("POST")

	r.Handle(
		"/logs/recent", handler.RecentLogsHandler(
			ctx,
			logStore,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/logs/similar", handler.SimilarLogsHandler(
			ctx,
			embedder,
			vectorStore,
			logger,
		),
	).Methods("POST")

	r.Handle(
		"/kpis", handler.KPIHandler(
			ctx,
			aggregator,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/kpis/breakdown", handler.BreakdownHandler(
			ctx,
			aggregator,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/anomalies", handler.AnomaliesHandler(
			ctx,
			logStore,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/anomalies/count", handler.AnomalyCountHandler(
			ctx,
			logStore,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/live-kpis", websocket.LiveHandler(
			ctx,
			broadcastHub,
			aggregator,
			logStore,
			logger,
		),
	)

	r.Handle("/health", handler.HealthHandler(broadcastHub, logger)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}
