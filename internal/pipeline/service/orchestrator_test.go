package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	anomalyService "github.com/pulselog/pulselog/internal/anomaly/service"
	"github.com/pulselog/pulselog/internal/collaborator/llm"
	"github.com/pulselog/pulselog/internal/hub"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	kpiService "github.com/pulselog/pulselog/internal/kpi/service"
	logstoreModel "github.com/pulselog/pulselog/internal/logstore/model"
	"github.com/pulselog/pulselog/internal/metrics"
	"github.com/pulselog/pulselog/internal/pipeline/model"
	vectorService "github.com/pulselog/pulselog/internal/vector/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAnalyzer struct {
	analysis llm.Analysis
	err      error
	delay    time.Duration
}

func (f *fakeAnalyzer) Analyze(
	ctx context.Context,
	_ model.LogEntry,
	_ kpiModel.WindowSnapshot,
) (llm.Analysis, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return llm.Analysis{}, ctx.Err()
		}
	}
	return f.analysis, f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) Dimension() int {
	return len(f.vector)
}

type fakeLogStore struct {
	mu         sync.Mutex
	logs       []logstoreModel.StoredLog
	anomalies  []logstoreModel.AnomalyRecord
	persistErr error
}

func (f *fakeLogStore) PersistLog(_ context.Context, storedLog logstoreModel.StoredLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return f.persistErr
	}
	f.logs = append(f.logs, storedLog)
	return nil
}

func (f *fakeLogStore) PersistAnomaly(_ context.Context, record logstoreModel.AnomalyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistErr != nil {
		return f.persistErr
	}
	f.anomalies = append(f.anomalies, record)
	return nil
}

func (f *fakeLogStore) RecentLogs(
	_ context.Context, _ int, _ string,
) ([]logstoreModel.StoredLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, nil
}

func (f *fakeLogStore) AnomaliesInRange(
	_ context.Context, _ anomalyModel.Severity, _ kpiModel.TimeRange, _ int,
) ([]logstoreModel.AnomalyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.anomalies, nil
}

func (f *fakeLogStore) CountAnomalies(_ context.Context, _ kpiModel.TimeRange) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.anomalies)), nil
}

func (f *fakeLogStore) anomalyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.anomalies)
}

func (f *fakeLogStore) logCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

type fakeVectorStore struct {
	mu        sync.Mutex
	documents []vectorService.VectorDocument
}

func (f *fakeVectorStore) UpsertVector(_ context.Context, document vectorService.VectorDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, document)
	return nil
}

func (f *fakeVectorStore) SearchSimilar(
	_ context.Context, _ []float32, _ int, _ bool,
) ([]vectorService.SimilarLog, error) {
	return nil, nil
}

func (f *fakeVectorStore) documentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.documents)
}

type orchestratorFixture struct {
	orchestrator *OrchestratorImpl
	analyzer     *fakeAnalyzer
	logStore     *fakeLogStore
	vectorStore  *fakeVectorStore
	broadcastHub *hub.BroadcastHub
}

func newFixture() *orchestratorFixture {
	logger := zap.NewNop()
	analyzer := &fakeAnalyzer{
		analysis: llm.Analysis{Summary: "request looks healthy"},
	}
	logStore := &fakeLogStore{}
	vectorStore := &fakeVectorStore{}
	broadcastHub := hub.NewBroadcastHub(16, time.Minute, logger)
	orchestrator := NewOrchestrator(
		kpiService.NewAggregator(logger),
		anomalyService.NewDetector(0, 0, logger),
		analyzer,
		&fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}},
		logStore,
		vectorStore,
		broadcastHub,
		metrics.NewTestCounters(),
		200*time.Millisecond,
		200*time.Millisecond,
		logger,
	)
	return &orchestratorFixture{
		orchestrator: orchestrator,
		analyzer:     analyzer,
		logStore:     logStore,
		vectorStore:  vectorStore,
		broadcastHub: broadcastHub,
	}
}

func validRequest() model.IngestRequest {
	return model.IngestRequest{
		Endpoint:   "/api/users",
		Method:     "GET",
		StatusCode: 200,
		Latency:    120,
	}
}

func TestProcessValidation(t *testing.T) {
	fixture := newFixture()

	request := validRequest()
	request.StatusCode = 999
	_, err := fixture.orchestrator.Process(context.Background(), request)

	var validationErr *model.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "status_code", validationErr.Field)
	assert.Zero(t, fixture.logStore.logCount())
}

func TestProcessHealthyEntry(t *testing.T) {
	fixture := newFixture()
	sub := fixture.broadcastHub.Subscribe()
	defer fixture.broadcastHub.Unsubscribe(sub)

	result, err := fixture.orchestrator.Process(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.LogId)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.DegradedStages)
	require.NotNil(t, result.AnalysisSummary)
	assert.Equal(t, "request looks healthy", *result.AnalysisSummary)
	assert.False(t, result.Score.IsAnomaly)
	assert.Greater(t, result.ProcessingTime, time.Duration(0))

	require.Equal(t, 1, fixture.logStore.logCount())
	assert.Zero(t, fixture.logStore.anomalyCount())

	select {
	case event := <-sub.Events():
		assert.Equal(t, hub.EventNewLog, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a new_log event")
	}

	assert.Eventually(t, func() bool {
		return fixture.vectorStore.documentCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestProcessAnomalousEntry(t *testing.T) {
	fixture := newFixture()
	fixture.analyzer.analysis = llm.Analysis{
		Summary: "checkout is failing",
		Verdict: &anomalyModel.SemanticVerdict{
			IsAnomaly:  true,
			Severity:   anomalyModel.SeverityCritical,
			Confidence: 0.9,
			Reason:     "database down",
		},
	}
	sub := fixture.broadcastHub.Subscribe()
	defer fixture.broadcastHub.Unsubscribe(sub)

	request := validRequest()
	request.StatusCode = 500
	result, err := fixture.orchestrator.Process(context.Background(), request)
	require.NoError(t, err)

	assert.True(t, result.Score.IsAnomaly)
	assert.Equal(t, anomalyModel.SeverityCritical, result.Score.Severity)
	require.Equal(t, 1, fixture.logStore.anomalyCount())

	var eventTypes []hub.EventType
	for i := 0; i < 2; i++ {
		select {
		case event := <-sub.Events():
			eventTypes = append(eventTypes, event.Type)
		case <-time.After(time.Second):
			t.Fatal("expected two events")
		}
	}
	assert.Contains(t, eventTypes, hub.EventNewLog)
	assert.Contains(t, eventTypes, hub.EventAnomalyAlert)
}

func TestProcessDegradedAnalysis(t *testing.T) {
	t.Run("Analyzer error degrades only the analysis stage", func(t *testing.T) {
		fixture := newFixture()
		fixture.analyzer.err = errors.New("llm unavailable")

		result, err := fixture.orchestrator.Process(context.Background(), validRequest())
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.True(t, result.Degraded)
		assert.Equal(t, []string{"analysis"}, result.DegradedStages)
		assert.Nil(t, result.AnalysisSummary)
		assert.Equal(t, 1, fixture.logStore.logCount())
	})

	t.Run("A late analyzer is treated as absent", func(t *testing.T) {
		fixture := newFixture()
		fixture.analyzer.delay = time.Second

		startTime := time.Now()
		result, err := fixture.orchestrator.Process(context.Background(), validRequest())
		require.NoError(t, err)

		assert.True(t, result.Degraded)
		assert.Equal(t, []string{"analysis"}, result.DegradedStages)
		assert.Nil(t, result.Score.SemanticVerdict)
		assert.Less(t, time.Since(startTime), 800*time.Millisecond)
	})
}

func TestProcessDegradedPersistence(t *testing.T) {
	fixture := newFixture()
	fixture.logStore.persistErr = errors.New("es unavailable")

	result, err := fixture.orchestrator.Process(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.Degraded)
	assert.Equal(t, []string{"persistence"}, result.DegradedStages)
}

func TestProcessSkipsNotifyOnDisconnect(t *testing.T) {
	fixture := newFixture()
	sub := fixture.broadcastHub.Subscribe()
	defer fixture.broadcastHub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := fixture.orchestrator.Process(ctx, validRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, fixture.logStore.logCount())

	select {
	case event := <-sub.Events():
		t.Fatalf("expected no events, got %s", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(503))
}
