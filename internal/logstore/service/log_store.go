package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/bootstrapper"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/cache"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/client"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	"github.com/pulselog/pulselog/internal/logstore/model"
	"go.uber.org/zap"
)

const timeout = 2 * time.Second
const recentCacheKey = "recent_logs"

// LogStore persists processed log entries and anomaly records and serves
// the read queries over them.
type LogStore interface {
	// PersistLog enqueues the document for write-behind bulk indexing.
	PersistLog(ctx context.Context, storedLog model.StoredLog) error
	// PersistAnomaly writes the anomaly record through immediately.
	PersistAnomaly(ctx context.Context, record model.AnomalyRecord) error
	// RecentLogs returns the newest documents, newest first. An empty
	// endpoint matches all endpoints.
	RecentLogs(ctx context.Context, limit int, endpoint string) ([]model.StoredLog, error)
	// AnomaliesInRange returns flagged entries within the time range,
	// newest first. SeverityNone matches all severities.
	AnomaliesInRange(
		ctx context.Context,
		severity anomalyModel.Severity,
		timeRange kpiModel.TimeRange,
		limit int,
	) ([]model.AnomalyRecord, error)
	// CountAnomalies counts flagged entries within the time range.
	CountAnomalies(ctx context.Context, timeRange kpiModel.TimeRange) (int64, error)
}

type LogStoreImpl struct {
	pc     client.PulseClient
	buffer cache.WriteBehindBuffer[model.StoredLog]
	logger *zap.Logger
}

func NewLogStoreImpl(
	pc client.PulseClient,
	buffer cache.WriteBehindBuffer[model.StoredLog],
	logger *zap.Logger,
) *LogStoreImpl {
	return &LogStoreImpl{
		pc:     pc,
		buffer: buffer,
		logger: logger,
	}
}

func (ls *LogStoreImpl) PersistLog(_ context.Context, storedLog model.StoredLog) error {
	if err := ls.buffer.Put(recentCacheKey, []model.StoredLog{storedLog}); err != nil {
		return fmt.Errorf("failed to buffer log document: %w", err)
	}
	return nil
}

func (ls *LogStoreImpl) PersistAnomaly(ctx context.Context, record model.AnomalyRecord) error {
	if record.Id == "" {
		record.Id = uuid.NewString()
	}
	metaInfo, documentInfo, err := client.ToMetaAndDocumentMap([]model.AnomalyRecord{record})
	if err != nil {
		return fmt.Errorf("failed to map anomaly record: %w", err)
	}
	indexCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err = ls.pc.Index(indexCtx, metaInfo[0], documentInfo[0], bootstrapper.AnomalyIndexName)
	if err == nil {
		return nil
	}
	ls.logger.Warn("Retrying anomaly index after failure", zap.Error(err))
	retryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ls.pc.Index(retryCtx, metaInfo[0], documentInfo[0], bootstrapper.AnomalyIndexName); err != nil {
		return fmt.Errorf("failed to index anomaly record: %w", err)
	}
	return nil
}

func (ls *LogStoreImpl) RecentLogs(
	ctx context.Context,
	limit int,
	endpoint string,
) ([]model.StoredLog, error) {
	if limit <= 0 {
		limit = client.SearchResultSize
	}
	if endpoint == "" {
		cached, err := ls.buffer.Get(recentCacheKey)
		if err == nil && len(cached) >= limit {
			return newestFirst(cached, limit), nil
		}
		if err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
			ls.logger.Warn("Failed to read recent logs from cache", zap.Error(err))
		}
	}

	queryJson, err := json.Marshal(getRecentLogsQuery(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recent logs query: %w", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := ls.pc.Search(queryCtx, string(queryJson), []string{bootstrapper.LogIndexName}, &limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search recent logs: %w", err)
	}
	return convertFromDocuments[model.StoredLog](res)
}

func (ls *LogStoreImpl) AnomaliesInRange(
	ctx context.Context,
	severity anomalyModel.Severity,
	timeRange kpiModel.TimeRange,
	limit int,
) ([]model.AnomalyRecord, error) {
	if limit <= 0 {
		limit = client.SearchResultSize
	}
	endTime := time.Now().UTC()
	startTime := endTime.Add(-timeRange.Duration())
	queryJson, err := json.Marshal(getAnomaliesQuery(severity, startTime, endTime))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anomalies query: %w", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := ls.pc.Search(queryCtx, string(queryJson), []string{bootstrapper.AnomalyIndexName}, &limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search anomalies: %w", err)
	}
	return convertFromDocuments[model.AnomalyRecord](res)
}

func (ls *LogStoreImpl) CountAnomalies(
	ctx context.Context,
	timeRange kpiModel.TimeRange,
) (int64, error) {
	endTime := time.Now().UTC()
	startTime := endTime.Add(-timeRange.Duration())
	queryJson, err := json.Marshal(getAnomalyCountQuery(startTime, endTime))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal anomaly count query: %w", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	count, err := ls.pc.Count(queryCtx, string(queryJson), []string{bootstrapper.AnomalyIndexName})
	if err != nil {
		return 0, fmt.Errorf("failed to count anomalies: %w", err)
	}
	return count, nil
}

// newestFirst reverses the tail of the chronologically ordered cache slice.
func newestFirst(cached []model.StoredLog, limit int) []model.StoredLog {
	tail := cached[len(cached)-limit:]
	result := make([]model.StoredLog, len(tail))
	for i, storedLog := range tail {
		result[len(tail)-1-i] = storedLog
	}
	return result
}

func convertFromDocuments[DocumentType any](documents []map[string]interface{}) ([]DocumentType, error) {
	results := make([]DocumentType, 0, len(documents))
	for _, document := range documents {
		raw, err := json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document: %w", err)
		}
		var converted DocumentType
		if err := json.Unmarshal(raw, &converted); err != nil {
			return nil, fmt.Errorf("failed to convert document: %w", err)
		}
		results = append(results, converted)
	}
	return results, nil
}
