package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	pipelineModel "github.com/pulselog/pulselog/internal/pipeline/model"
	"go.uber.org/zap"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// HttpEmbedder calls an OpenAI-compatible /embeddings endpoint, as served
// by local sentence-transformer gateways.
type HttpEmbedder struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHttpEmbedder(
	baseURL string,
	model string,
	dimension int,
	timeout time.Duration,
	logger *zap.Logger,
) *HttpEmbedder {
	return &HttpEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HttpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/embeddings",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed with status %d", res.StatusCode)
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	vector := decoded.Data[0].Embedding
	if len(vector) != e.dimension {
		return nil, fmt.Errorf(
			"embedding dimension mismatch: expected %d, got %d", e.dimension, len(vector))
	}
	return vector, nil
}

func (e *HttpEmbedder) Dimension() int {
	return e.dimension
}

// LogText renders the entry as the canonical embedding input.
func LogText(entry pipelineModel.LogEntry, analysisSummary string) string {
	parts := []string{
		fmt.Sprintf("Endpoint: %s", entry.Endpoint),
		fmt.Sprintf("Method: %s", entry.Method),
		fmt.Sprintf("Status: %d", entry.StatusCode),
		fmt.Sprintf("Latency: %.0fms", entry.Latency),
	}
	if entry.Error != "" {
		parts = append(parts, fmt.Sprintf("Error: %s", entry.Error))
	}
	if analysisSummary != "" {
		parts = append(parts, fmt.Sprintf("Analysis: %s", analysisSummary))
	}
	return strings.Join(parts, " | ")
}
