package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	kpiService "github.com/pulselog/pulselog/internal/kpi/service"
	logstoreModel "github.com/pulselog/pulselog/internal/logstore/model"
	"github.com/pulselog/pulselog/internal/pipeline/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeOrchestrator struct {
	result      model.PipelineResult
	lastRequest model.IngestRequest
}

func (f *fakeOrchestrator) Process(
	_ context.Context,
	request model.IngestRequest,
) (model.PipelineResult, error) {
	f.lastRequest = request
	if validationErr := request.Validate(); validationErr != nil {
		return model.PipelineResult{}, validationErr
	}
	return f.result, nil
}

type fakeLogStore struct {
	logs      []logstoreModel.StoredLog
	anomalies []logstoreModel.AnomalyRecord
	count     int64
}

func (f *fakeLogStore) PersistLog(_ context.Context, _ logstoreModel.StoredLog) error {
	return nil
}

func (f *fakeLogStore) PersistAnomaly(_ context.Context, _ logstoreModel.AnomalyRecord) error {
	return nil
}

func (f *fakeLogStore) RecentLogs(
	_ context.Context, _ int, _ string,
) ([]logstoreModel.StoredLog, error) {
	return f.logs, nil
}

func (f *fakeLogStore) AnomaliesInRange(
	_ context.Context, _ anomalyModel.Severity, _ kpiModel.TimeRange, _ int,
) ([]logstoreModel.AnomalyRecord, error) {
	return f.anomalies, nil
}

func (f *fakeLogStore) CountAnomalies(_ context.Context, _ kpiModel.TimeRange) (int64, error) {
	return f.count, nil
}

func TestIngestHandler(t *testing.T) {
	summary := "request looks healthy"
	orchestrator := &fakeOrchestrator{
		result: model.PipelineResult{
			Success:         true,
			LogId:           "log-1",
			AnalysisSummary: &summary,
			ProcessingTime:  42 * time.Millisecond,
		},
	}
	ingest := IngestHandler(context.Background(), orchestrator, zap.NewNop())

	t.Run("Returns the pipeline result", func(t *testing.T) {
		body, err := json.Marshal(model.IngestRequest{
			Endpoint:   "/api/users",
			Method:     "GET",
			StatusCode: 200,
			Latency:    120,
		})
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		ingest(recorder, httptest.NewRequest("POST", "/logs", bytes.NewReader(body)))

		assert.Equal(t, http.StatusOK, recorder.Code)
		var response IngestResponseDTO
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.True(t, response.Success)
		assert.Equal(t, "log-1", response.LogId)
		require.NotNil(t, response.AnalysisSummary)
		assert.Equal(t, summary, *response.AnalysisSummary)
		assert.Equal(t, 42.0, response.ProcessingTimeMs)
	})

	t.Run("Rejects malformed JSON", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		ingest(recorder, httptest.NewRequest("POST", "/logs", bytes.NewReader([]byte("{not json"))))
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("Rejects out-of-range input with details", func(t *testing.T) {
		body, err := json.Marshal(model.IngestRequest{
			Endpoint:   "/api/users",
			Method:     "GET",
			StatusCode: 700,
			Latency:    120,
		})
		require.NoError(t, err)

		recorder := httptest.NewRecorder()
		ingest(recorder, httptest.NewRequest("POST", "/logs", bytes.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		var message ErrorMessage
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&message))
		assert.Contains(t, message.Message, "status_code")
	})
}

func TestRecentLogsHandler(t *testing.T) {
	logStore := &fakeLogStore{logs: []logstoreModel.StoredLog{
		{Id: "a", Endpoint: "/api/users"},
		{Id: "b", Endpoint: "/api/users"},
	}}
	recent := RecentLogsHandler(context.Background(), logStore, zap.NewNop())

	recorder := httptest.NewRecorder()
	recent(recorder, httptest.NewRequest("GET", "/logs/recent?limit=2", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	var response RecentLogsResponseDTO
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.True(t, response.Success)
	assert.Equal(t, 2, response.Count)
}

func TestKPIHandler(t *testing.T) {
	aggregator := kpiService.NewAggregator(zap.NewNop())
	aggregator.Update("GET /api/users", 100, false)
	aggregator.Update("GET /api/users", 300, true)
	kpis := KPIHandler(context.Background(), aggregator, zap.NewNop())

	t.Run("Returns global metrics by default", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		kpis(recorder, httptest.NewRequest("GET", "/kpis", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		var response kpiModel.KPIMetrics
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.Equal(t, int64(2), response.TotalRequests)
		assert.Equal(t, kpiModel.Range1h, response.TimeRange)
	})

	t.Run("Scopes metrics to an endpoint", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		kpis(recorder, httptest.NewRequest(
			"GET", "/kpis?endpoint=GET+%2Fapi%2Fusers&time_range=24h", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		var response kpiModel.KPIMetrics
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.Equal(t, int64(2), response.TotalRequests)
		assert.Equal(t, kpiModel.Range24h, response.TimeRange)
	})

	t.Run("Rejects an unsupported time range", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		kpis(recorder, httptest.NewRequest("GET", "/kpis?time_range=90d", nil))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		var message ErrorMessage
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&message))
		assert.Contains(t, message.Message, "90d")
	})
}

func TestBreakdownHandler(t *testing.T) {
	aggregator := kpiService.NewAggregator(zap.NewNop())
	aggregator.Update("GET /api/users", 100, false)
	aggregator.Update("POST /api/orders", 250, false)
	breakdown := BreakdownHandler(context.Background(), aggregator, zap.NewNop())

	t.Run("Returns per-endpoint metrics", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		breakdown(recorder, httptest.NewRequest("GET", "/kpis/breakdown", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		var response BreakdownResponseDTO
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.Len(t, response.Endpoints, 2)
		assert.Contains(t, response.Endpoints, "GET /api/users")
	})

	t.Run("Rejects an unsupported time range", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		breakdown(recorder, httptest.NewRequest("GET", "/kpis/breakdown?time_range=forever", nil))
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestAnomalyHandlers(t *testing.T) {
	logStore := &fakeLogStore{
		anomalies: []logstoreModel.AnomalyRecord{
			{LogId: "log-1", AnomalySeverity: anomalyModel.SeverityHigh},
		},
		count: 7,
	}

	t.Run("Lists anomalies", func(t *testing.T) {
		anomalies := AnomaliesHandler(context.Background(), logStore, zap.NewNop())
		recorder := httptest.NewRecorder()
		anomalies(recorder, httptest.NewRequest("GET", "/anomalies?severity=HIGH&time_range=24h", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		var response AnomalyListResponseDTO
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.Equal(t, 1, response.Count)
		assert.Equal(t, anomalyModel.SeverityHigh, response.Anomalies[0].AnomalySeverity)
	})

	t.Run("Counts anomalies", func(t *testing.T) {
		count := AnomalyCountHandler(context.Background(), logStore, zap.NewNop())
		recorder := httptest.NewRecorder()
		count(recorder, httptest.NewRequest("GET", "/anomalies/count?time_range=7d", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		var response AnomalyCountResponseDTO
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
		assert.Equal(t, int64(7), response.Count)
		assert.Equal(t, kpiModel.Range7d, response.TimeRange)
	})

	t.Run("Rejects an unsupported time range on list", func(t *testing.T) {
		anomalies := AnomaliesHandler(context.Background(), logStore, zap.NewNop())
		recorder := httptest.NewRecorder()
		anomalies(recorder, httptest.NewRequest("GET", "/anomalies?time_range=2h", nil))
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("Rejects an unsupported time range on count", func(t *testing.T) {
		count := AnomalyCountHandler(context.Background(), logStore, zap.NewNop())
		recorder := httptest.NewRecorder()
		count(recorder, httptest.NewRequest("GET", "/anomalies/count?time_range=2h", nil))
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 100, parseLimit("", 100))
	assert.Equal(t, 25, parseLimit("25", 100))
	assert.Equal(t, 100, parseLimit("-3", 100))
	assert.Equal(t, 100, parseLimit("abc", 100))
}
