package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pulselog/pulselog/internal/collaborator/embedding"
	vectorService "github.com/pulselog/pulselog/internal/vector/service"
	"go.uber.org/zap"
)

// SimilarLogsHandler creates a handler that embeds free text and ranks
// indexed logs by vector similarity to it.
func SimilarLogsHandler(
	ctx context.Context,
	embedder embedding.Embedder,
	vectorStore vectorService.VectorStore,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SimilarSearchRequestDTO
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

		if req.Text == "" {
			HttpError(w, "text must not be empty", http.StatusBadRequest, logger)
			return
		}

		vector, err := embedder.Embed(r.Context(), req.Text)
		if err != nil {
			logger.Error("Error encountered when embedding query text", zap.Error(err))
			HttpError(w, "Embedding service unavailable", http.StatusServiceUnavailable, logger)
			return
		}

		results, err := vectorStore.SearchSimilar(r.Context(), vector, req.TopK, req.AnomaliesOnly)
		if err != nil {
			logger.Error("Error encountered when searching similar logs", zap.Error(err))
			HttpError(w, "Internal server error", http.StatusInternalServerError, logger)
			return
		}

		writeJson(w, SimilarSearchResponseDTO{
			Success: true,
			Count:   len(results),
			Results: results,
		}, logger)
	}
}
