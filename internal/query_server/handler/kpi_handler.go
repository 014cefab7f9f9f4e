package handler

import (
	"context"
	"net/http"

	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	kpiService "github.com/pulselog/pulselog/internal/kpi/service"
	"go.uber.org/zap"
)

// KPIHandler creates a handler for the windowed KPI metrics, optionally
// scoped to a single aggregation key.
func KPIHandler(
	ctx context.Context,
	aggregator kpiService.Aggregator,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeRange, err := kpiModel.ParseTimeRange(r.URL.Query().Get("time_range"))
		if err != nil {
			HttpError(w, err.Error(), http.StatusBadRequest, logger)
			return
		}
		key := r.URL.Query().Get("endpoint")
		if key == "" {
			key = kpiService.GlobalKey
		}
		writeJson(w, aggregator.Query(timeRange, key), logger)
	}
}

// BreakdownHandler creates a handler for per-endpoint KPI metrics.
func BreakdownHandler(
	ctx context.Context,
	aggregator kpiService.Aggregator,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timeRange, err := kpiModel.ParseTimeRange(r.URL.Query().Get("time_range"))
		if err != nil {
			HttpError(w, err.Error(), http.StatusBadRequest, logger)
			return
		}
		writeJson(w, BreakdownResponseDTO{
			TimeRange: timeRange,
			Endpoints: aggregator.Breakdown(timeRange),
		}, logger)
	}
}
