package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	anomalyService "github.com/pulselog/pulselog/internal/anomaly/service"
	"github.com/pulselog/pulselog/internal/collaborator/embedding"
	"github.com/pulselog/pulselog/internal/collaborator/llm"
	"github.com/pulselog/pulselog/internal/hub"
	kpiService "github.com/pulselog/pulselog/internal/kpi/service"
	logstoreModel "github.com/pulselog/pulselog/internal/logstore/model"
	logstoreService "github.com/pulselog/pulselog/internal/logstore/service"
	"github.com/pulselog/pulselog/internal/metrics"
	"github.com/pulselog/pulselog/internal/pipeline/model"
	vectorService "github.com/pulselog/pulselog/internal/vector/service"
	"go.uber.org/zap"
)

const (
	stageAnalysis    = "analysis"
	stagePersistence = "persistence"
	stageIndexing    = "indexing"
)

// Orchestrator drives one log record through the full processing
// pipeline: validation, KPI update, semantic analysis, anomaly
// detection, persistence, vector indexing and live notification.
type Orchestrator interface {
	// Process handles one record end to end. It returns a
	// *model.ValidationError for malformed input; optional stage
	// failures degrade the result instead of failing it.
	Process(ctx context.Context, request model.IngestRequest) (model.PipelineResult, error)
}

type OrchestratorImpl struct {
	aggregator   kpiService.Aggregator
	detector     anomalyService.Detector
	analyzer     llm.SemanticAnalyzer
	embedder     embedding.Embedder
	logStore     logstoreService.LogStore
	vectorStore  vectorService.VectorStore
	broadcastHub *hub.BroadcastHub
	counters     *metrics.Counters
	llmTimeout   time.Duration
	embedTimeout time.Duration
	logger       *zap.Logger
}

func NewOrchestrator(
	aggregator kpiService.Aggregator,
	detector anomalyService.Detector,
	analyzer llm.SemanticAnalyzer,
	embedder embedding.Embedder,
	logStore logstoreService.LogStore,
	vectorStore vectorService.VectorStore,
	broadcastHub *hub.BroadcastHub,
	counters *metrics.Counters,
	llmTimeout time.Duration,
	embedTimeout time.Duration,
	logger *zap.Logger,
) *OrchestratorImpl {
	return &OrchestratorImpl{
		aggregator:   aggregator,
		detector:     detector,
		analyzer:     analyzer,
		embedder:     embedder,
		logStore:     logStore,
		vectorStore:  vectorStore,
		broadcastHub: broadcastHub,
		counters:     counters,
		llmTimeout:   llmTimeout,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

type analysisResult struct {
	analysis llm.Analysis
	err      error
}

func (o *OrchestratorImpl) Process(
	ctx context.Context,
	request model.IngestRequest,
) (model.PipelineResult, error) {
	startTime := time.Now()

	if validationErr := request.Validate(); validationErr != nil {
		return model.PipelineResult{}, validationErr
	}
	entry := newLogEntry(request)

	snapshot := o.aggregator.Update(entry.Key(), entry.Latency, entry.IsError())
	o.counters.LogsIngested.Inc(entry.Method, statusClass(entry.StatusCode))

	analysisCh := make(chan analysisResult, 1)
	go func() {
		analysisCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.llmTimeout)
		defer cancel()
		analysis, err := o.analyzer.Analyze(analysisCtx, entry, snapshot)
		analysisCh <- analysisResult{analysis: analysis, err: err}
	}()

	var degradedStages []string
	var summary string
	var verdict *anomalyModel.SemanticVerdict

	select {
	case result := <-analysisCh:
		if result.err != nil {
			o.logger.Warn("Semantic analysis degraded",
				zap.String("log_id", entry.Id), zap.Error(result.err))
			degradedStages = append(degradedStages, stageAnalysis)
		} else {
			summary = result.analysis.Summary
			verdict = result.analysis.Verdict
		}
	case <-time.After(o.llmTimeout):
		o.logger.Warn("Semantic analysis timed out", zap.String("log_id", entry.Id))
		degradedStages = append(degradedStages, stageAnalysis)
	}

	score := o.detector.Detect(entry, snapshot, verdict)
	if score.IsAnomaly {
		o.counters.AnomaliesFlagged.Inc(score.Severity.String())
	}

	if err := o.persist(ctx, entry, summary, score); err != nil {
		o.logger.Error("Persistence degraded",
			zap.String("log_id", entry.Id), zap.Error(err))
		degradedStages = append(degradedStages, stagePersistence)
	}

	go o.embedAndIndex(ctx, entry, summary, score)

	o.notify(ctx, entry, summary, score)

	for _, stage := range degradedStages {
		o.counters.StagesDegraded.Inc(stage)
	}
	result := model.PipelineResult{
		Success:        true,
		LogId:          entry.Id,
		Score:          score,
		ProcessingTime: time.Since(startTime),
		Degraded:       len(degradedStages) > 0,
		DegradedStages: degradedStages,
	}
	if summary != "" {
		result.AnalysisSummary = &summary
	}
	return result, nil
}

func newLogEntry(request model.IngestRequest) model.LogEntry {
	entry := model.LogEntry{
		Id:         uuid.NewString(),
		Endpoint:   request.Endpoint,
		Method:     request.Method,
		StatusCode: request.StatusCode,
		Latency:    request.Latency,
		Metadata:   request.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if request.Error != nil {
		entry.Error = *request.Error
	}
	if request.UserId != nil {
		entry.UserId = *request.UserId
	}
	if request.TraceId != nil {
		entry.TraceId = *request.TraceId
	}
	return entry
}

// persist writes the log document and, for flagged entries, the anomaly
// record. It runs detached from the caller's cancellation so a client
// disconnect cannot lose the write.
func (o *OrchestratorImpl) persist(
	ctx context.Context,
	entry model.LogEntry,
	summary string,
	score anomalyModel.AnomalyScore,
) error {
	persistCtx := context.WithoutCancel(ctx)
	storedLog := logstoreModel.NewStoredLog(entry, summary, score)
	if err := o.logStore.PersistLog(persistCtx, storedLog); err != nil {
		return fmt.Errorf("failed to persist log: %w", err)
	}
	if !score.IsAnomaly {
		return nil
	}
	record := logstoreModel.NewAnomalyRecord(entry, summary, score)
	if err := o.logStore.PersistAnomaly(persistCtx, record); err != nil {
		return fmt.Errorf("failed to persist anomaly: %w", err)
	}
	return nil
}

// embedAndIndex runs after the response is produced. Failures are logged
// and counted but never reach the caller.
func (o *OrchestratorImpl) embedAndIndex(
	ctx context.Context,
	entry model.LogEntry,
	summary string,
	score anomalyModel.AnomalyScore,
) {
	embedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.embedTimeout)
	defer cancel()

	vector, err := o.embedder.Embed(embedCtx, embedding.LogText(entry, summary))
	if err != nil {
		o.logger.Warn("Embedding degraded", zap.String("log_id", entry.Id), zap.Error(err))
		o.counters.StagesDegraded.Inc(stageIndexing)
		return
	}
	document := vectorService.NewVectorDocument(entry, vector, score)
	if err := o.vectorStore.UpsertVector(embedCtx, document); err != nil {
		o.logger.Warn("Vector indexing degraded", zap.String("log_id", entry.Id), zap.Error(err))
		o.counters.StagesDegraded.Inc(stageIndexing)
	}
}

// notify publishes the live events, skipped when the caller already went
// away.
func (o *OrchestratorImpl) notify(
	ctx context.Context,
	entry model.LogEntry,
	summary string,
	score anomalyModel.AnomalyScore,
) {
	if ctx.Err() != nil {
		return
	}
	o.broadcastHub.Publish(hub.EventNewLog, logstoreModel.NewStoredLog(entry, summary, score))
	if score.IsAnomaly {
		o.broadcastHub.Publish(hub.EventAnomalyAlert, logstoreModel.NewAnomalyRecord(entry, summary, score))
	}
}

func statusClass(statusCode int) string {
	return fmt.Sprintf("%dxx", statusCode/100)
}
