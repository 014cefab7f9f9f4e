package handler

import (
	"context"
	"net/http"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	logstoreService "github.com/pulselog/pulselog/internal/logstore/service"
	"go.uber.org/zap"
)

// AnomaliesHandler creates a handler for listing flagged entries,
// optionally filtered by severity.
func AnomaliesHandler(
	ctx context.Context,
	logStore logstoreService.LogStore,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		severity := anomalyModel.ParseSeverity(r.URL.Query().Get("severity"))
		timeRange, err := kpiModel.ParseTimeRange(r.URL.Query().Get("time_range"))
		if err != nil {
			HttpError(w, err.Error(), http.StatusBadRequest, logger)
			return
		}
		limit := parseLimit(r.URL.Query().Get("limit"), 50)

		anomalies, err := logStore.AnomaliesInRange(r.Context(), severity, timeRange, limit)
		if err != nil {
			logger.Error("Error encountered when fetching anomalies", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		writeJson(w, AnomalyListResponseDTO{
			Success:   true,
			Count:     len(anomalies),
			Anomalies: anomalies,
		}, logger)
	}
}

// AnomalyCountHandler creates a handler for counting flagged entries in
// a time range.
func AnomalyCountHandler(
	ctx context.Context,
	logStore logstoreService.LogStore,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeRange, err := kpiModel.ParseTimeRange(r.URL.Query().Get("time_range"))
		if err != nil {
			HttpError(w, err.Error(), http.StatusBadRequest, logger)
			return
		}

		count, err := logStore.CountAnomalies(r.Context(), timeRange)
		if err != nil {
			logger.Error("Error encountered when counting anomalies", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		writeJson(w, AnomalyCountResponseDTO{
			TimeRange: timeRange,
			Count:     count,
		}, logger)
	}
}
