package handler

import (
	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	logstoreModel "github.com/pulselog/pulselog/internal/logstore/model"
	pipelineModel "github.com/pulselog/pulselog/internal/pipeline/model"
	vectorService "github.com/pulselog/pulselog/internal/vector/service"
)

// IngestResponseDTO is the terminal pipeline result returned to the
// submitting client.
type IngestResponseDTO struct {
	Success          bool                      `json:"success"`
	LogId            string                    `json:"log_id"`
	AnalysisSummary  *string                   `json:"analysis_summary,omitempty"`
	AnomalyScore     anomalyModel.AnomalyScore `json:"anomaly_score"`
	ProcessingTimeMs float64                   `json:"processing_time_ms"`
	Degraded         bool                      `json:"degraded"`
	DegradedStages   []string                  `json:"degraded_stages,omitempty"`
}

// RecentLogsResponseDTO wraps a recent-log listing.
type RecentLogsResponseDTO struct {
	Success bool                      `json:"success"`
	Count   int                       `json:"count"`
	Logs    []logstoreModel.StoredLog `json:"logs"`
}

// BreakdownResponseDTO maps each endpoint key to its windowed metrics.
type BreakdownResponseDTO struct {
	TimeRange kpiModel.TimeRange             `json:"time_range"`
	Endpoints map[string]kpiModel.KPIMetrics `json:"endpoints"`
}

// AnomalyListResponseDTO wraps an anomaly listing.
type AnomalyListResponseDTO struct {
	Success   bool                          `json:"success"`
	Count     int                           `json:"count"`
	Anomalies []logstoreModel.AnomalyRecord `json:"anomalies"`
}

// AnomalyCountResponseDTO reports the number of flagged entries in a
// time range.
type AnomalyCountResponseDTO struct {
	TimeRange kpiModel.TimeRange `json:"time_range"`
	Count     int64              `json:"count"`
}

// SimilarSearchRequestDTO describes a similarity query over indexed logs.
type SimilarSearchRequestDTO struct {
	Text          string `json:"text"`
	TopK          int    `json:"top_k,omitempty"`
	AnomaliesOnly bool   `json:"anomalies_only,omitempty"`
}

// SimilarSearchResponseDTO lists nearest-neighbour matches.
type SimilarSearchResponseDTO struct {
	Success bool                       `json:"success"`
	Count   int                        `json:"count"`
	Results []vectorService.SimilarLog `json:"results"`
}

// HealthResponseDTO reports liveness and subscriber count.
type HealthResponseDTO struct {
	Status      string `json:"status"`
	Subscribers int    `json:"subscribers"`
}

func toIngestResponse(result pipelineModel.PipelineResult) IngestResponseDTO {
	return IngestResponseDTO{
		Success:          result.Success,
		LogId:            result.LogId,
		AnalysisSummary:  result.AnalysisSummary,
		AnomalyScore:     result.Score,
		ProcessingTimeMs: float64(result.ProcessingTime.Microseconds()) / 1000.0,
		Degraded:         result.Degraded,
		DegradedStages:   result.DegradedStages,
	}
}
