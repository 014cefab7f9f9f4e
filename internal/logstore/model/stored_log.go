package model

import (
	"time"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	pipelineModel "github.com/pulselog/pulselog/internal/pipeline/model"
)

// StoredLog is the persisted form of a log entry, with the detection
// outcome denormalized onto the document so searches never need a join.
type StoredLog struct {
	Id                string                 `json:"_id,omitempty"`
	Endpoint          string                 `json:"endpoint"`
	Method            string                 `json:"method"`
	StatusCode        int                    `json:"status_code"`
	Latency           float64                `json:"latency"`
	Error             string                 `json:"error,omitempty"`
	UserId            string                 `json:"user_id,omitempty"`
	TraceId           string                 `json:"trace_id,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	AnalysisSummary   string                 `json:"analysis_summary,omitempty"`
	IsAnomaly         bool                   `json:"is_anomaly"`
	AnomalySeverity   anomalyModel.Severity  `json:"anomaly_severity"`
	AnomalyConfidence float64                `json:"anomaly_confidence"`
	AnomalyReason     string                 `json:"anomaly_reason,omitempty"`
	ZScore            *float64               `json:"z_score,omitempty"`
}

// AnomalyRecord is one flagged entry in the anomaly index. It carries
// enough of the source log to render an alert without a second lookup.
type AnomalyRecord struct {
	Id                string                `json:"_id,omitempty"`
	LogId             string                `json:"log_id"`
	Endpoint          string                `json:"endpoint"`
	Method            string                `json:"method"`
	StatusCode        int                   `json:"status_code"`
	Latency           float64               `json:"latency"`
	CreatedAt         time.Time             `json:"created_at"`
	AnalysisSummary   string                `json:"analysis_summary,omitempty"`
	AnomalySeverity   anomalyModel.Severity `json:"anomaly_severity"`
	AnomalyConfidence float64               `json:"anomaly_confidence"`
	AnomalyReason     string                `json:"anomaly_reason,omitempty"`
	ZScore            *float64              `json:"z_score,omitempty"`
}

// NewStoredLog builds the persisted document for an entry and its score.
func NewStoredLog(
	entry pipelineModel.LogEntry,
	analysisSummary string,
	score anomalyModel.AnomalyScore,
) StoredLog {
	return StoredLog{
		Id:                entry.Id,
		Endpoint:          entry.Endpoint,
		Method:            entry.Method,
		StatusCode:        entry.StatusCode,
		Latency:           entry.Latency,
		Error:             entry.Error,
		UserId:            entry.UserId,
		TraceId:           entry.TraceId,
		Metadata:          entry.Metadata,
		CreatedAt:         entry.CreatedAt,
		AnalysisSummary:   analysisSummary,
		IsAnomaly:         score.IsAnomaly,
		AnomalySeverity:   score.Severity,
		AnomalyConfidence: score.Confidence,
		AnomalyReason:     score.Reason,
		ZScore:            score.ZScore,
	}
}

// NewAnomalyRecord builds the anomaly-index document for a flagged entry.
func NewAnomalyRecord(
	entry pipelineModel.LogEntry,
	analysisSummary string,
	score anomalyModel.AnomalyScore,
) AnomalyRecord {
	return AnomalyRecord{
		LogId:             entry.Id,
		Endpoint:          entry.Endpoint,
		Method:            entry.Method,
		StatusCode:        entry.StatusCode,
		Latency:           entry.Latency,
		CreatedAt:         entry.CreatedAt,
		AnalysisSummary:   analysisSummary,
		AnomalySeverity:   score.Severity,
		AnomalyConfidence: score.Confidence,
		AnomalyReason:     score.Reason,
		ZScore:            score.ZScore,
	}
}
