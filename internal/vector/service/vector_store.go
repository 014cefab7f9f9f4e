package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/bootstrapper"
	"github.com/pulselog/pulselog/internal/db/elasticsearch/client"
	pipelineModel "github.com/pulselog/pulselog/internal/pipeline/model"
	"go.uber.org/zap"
)

const timeout = 2 * time.Second
const embeddingField = "embedding"

// VectorDocument is one embedded log entry in the vector index.
type VectorDocument struct {
	Id              string                `json:"_id,omitempty"`
	Embedding       []float32             `json:"embedding"`
	LogId           string                `json:"log_id"`
	Endpoint        string                `json:"endpoint"`
	Method          string                `json:"method"`
	StatusCode      int                   `json:"status_code"`
	Latency         float64               `json:"latency"`
	CreatedAt       time.Time             `json:"created_at"`
	IsAnomaly       bool                  `json:"is_anomaly"`
	AnomalySeverity anomalyModel.Severity `json:"anomaly_severity"`
}

// SimilarLog is one nearest-neighbour match, scored by cosine similarity.
type SimilarLog struct {
	Id              string                `json:"id"`
	Score           float64               `json:"score"`
	LogId           string                `json:"log_id"`
	Endpoint        string                `json:"endpoint"`
	Method          string                `json:"method"`
	StatusCode      int                   `json:"status_code"`
	Latency         float64               `json:"latency"`
	CreatedAt       time.Time             `json:"created_at"`
	IsAnomaly       bool                  `json:"is_anomaly"`
	AnomalySeverity anomalyModel.Severity `json:"anomaly_severity"`
}

// VectorStore indexes log embeddings and answers similarity queries.
type VectorStore interface {
	UpsertVector(ctx context.Context, document VectorDocument) error
	SearchSimilar(
		ctx context.Context,
		vector []float32,
		topK int,
		anomaliesOnly bool,
	) ([]SimilarLog, error)
}

type VectorStoreImpl struct {
	pc     client.PulseClient
	logger *zap.Logger
}

func NewVectorStoreImpl(pc client.PulseClient, logger *zap.Logger) *VectorStoreImpl {
	return &VectorStoreImpl{
		pc:     pc,
		logger: logger,
	}
}

// EmbeddingId derives the deterministic vector id for an entry, so that
// re-processing the same entry overwrites its vector instead of
// duplicating it.
func EmbeddingId(entry pipelineModel.LogEntry) string {
	seed := fmt.Sprintf(
		"%s_%s_%s",
		entry.Endpoint,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		entry.TraceId,
	)
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// NewVectorDocument builds the vector-index document for an embedded entry.
func NewVectorDocument(
	entry pipelineModel.LogEntry,
	embedding []float32,
	score anomalyModel.AnomalyScore,
) VectorDocument {
	return VectorDocument{
		Id:              EmbeddingId(entry),
		Embedding:       embedding,
		LogId:           entry.Id,
		Endpoint:        entry.Endpoint,
		Method:          entry.Method,
		StatusCode:      entry.StatusCode,
		Latency:         entry.Latency,
		CreatedAt:       entry.CreatedAt,
		IsAnomaly:       score.IsAnomaly,
		AnomalySeverity: score.Severity,
	}
}

func (vs *VectorStoreImpl) UpsertVector(ctx context.Context, document VectorDocument) error {
	metaInfo, documentInfo, err := client.ToMetaAndDocumentMap([]VectorDocument{document})
	if err != nil {
		return fmt.Errorf("failed to map vector document: %w", err)
	}
	indexCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err = vs.pc.Index(indexCtx, metaInfo[0], documentInfo[0], bootstrapper.VectorIndexName)
	if err != nil {
		return fmt.Errorf("failed to index vector document: %w", err)
	}
	return nil
}

func (vs *VectorStoreImpl) SearchSimilar(
	ctx context.Context,
	vector []float32,
	topK int,
	anomaliesOnly bool,
) ([]SimilarLog, error) {
	if topK <= 0 {
		topK = client.SearchResultSize
	}
	var filter map[string]interface{}
	if anomaliesOnly {
		filter = map[string]interface{}{
			"term": map[string]interface{}{
				"is_anomaly": true,
			},
		}
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	hits, err := vs.pc.KnnSearch(queryCtx, bootstrapper.VectorIndexName, embeddingField, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar logs: %w", err)
	}
	return convertFromHits(hits)
}

func convertFromHits(hits []client.VectorHit) ([]SimilarLog, error) {
	results := make([]SimilarLog, 0, len(hits))
	for _, hit := range hits {
		delete(hit.Metadata, embeddingField)
		raw, err := json.Marshal(hit.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal vector hit: %w", err)
		}
		var similar SimilarLog
		if err := json.Unmarshal(raw, &similar); err != nil {
			return nil, fmt.Errorf("failed to convert vector hit: %w", err)
		}
		similar.Id = hit.Id
		similar.Score = hit.Score
		results = append(results, similar)
	}
	return results, nil
}
