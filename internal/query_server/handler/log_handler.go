package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	logstoreService "github.com/pulselog/pulselog/internal/logstore/service"
	"github.com/pulselog/pulselog/internal/pipeline/model"
	pipelineService "github.com/pulselog/pulselog/internal/pipeline/service"
	"go.uber.org/zap"
)

// IngestHandler creates a handler for submitting one log record to the
// processing pipeline.
func IngestHandler(
	ctx context.Context,
	orchestrator pipelineService.Orchestrator,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.IngestRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			logger.Error("Error encountered when decoding request body", zap.Error(err))
			HttpError(w, "Invalid request payload", http.StatusBadRequest, logger)
			return
		}

		defer func(Body io.ReadCloser) {
			err := Body.Close()
			if err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}(r.Body)

		result, err := orchestrator.Process(r.Context(), req)
		if err != nil {
			var validationErr *model.ValidationError
			if errors.As(err, &validationErr) {
				HttpError(w, validationErr.Error(), http.StatusBadRequest, logger)
				return
			}
			logger.Error("Error encountered when processing log", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		writeJson(w, toIngestResponse(result), logger)
	}
}

// GenerateHandler creates a handler that feeds one synthetic log record
// through the pipeline, for testing without an external generator.
func GenerateHandler(
	ctx context.Context,
	orchestrator pipelineService.Orchestrator,
	generator *pipelineService.Generator,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := orchestrator.Process(r.Context(), generator.Next())
		if err != nil {
			logger.Error("Error encountered when processing synthetic log", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}
		writeJson(w, toIngestResponse(result), logger)
	}
}

// RecentLogsHandler creates a handler for listing the newest log
// documents, optionally filtered by endpoint.
func RecentLogsHandler(
	ctx context.Context,
	logStore logstoreService.LogStore,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r.URL.Query().Get("limit"), 100)
		endpoint := r.URL.Query().Get("endpoint")

		logs, err := logStore.RecentLogs(r.Context(), limit, endpoint)
		if err != nil {
			logger.Error("Error encountered when fetching recent logs", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		writeJson(w, RecentLogsResponseDTO{
			Success: true,
			Count:   len(logs),
			Logs:    logs,
		}, logger)
	}
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
