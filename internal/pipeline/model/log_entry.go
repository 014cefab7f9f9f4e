package model

import (
	"fmt"
	"math"
	"time"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
)

// IngestRequest is the raw, untrusted telemetry record as submitted by a
// client application.
type IngestRequest struct {
	Endpoint   string                 `json:"endpoint"`
	Method     string                 `json:"method"`
	StatusCode int                    `json:"status_code"`
	Latency    float64                `json:"latency"`
	Error      *string                `json:"error,omitempty"`
	UserId     *string                `json:"user_id,omitempty"`
	TraceId    *string                `json:"trace_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// LogEntry is the validated, immutable record of one API call. The
// orchestrator creates it once on ingestion; downstream stages only read it.
type LogEntry struct {
	Id         string                 `json:"_id,omitempty"`
	Endpoint   string                 `json:"endpoint"`
	Method     string                 `json:"method"`
	StatusCode int                    `json:"status_code"`
	Latency    float64                `json:"latency"`
	Error      string                 `json:"error,omitempty"`
	UserId     string                 `json:"user_id,omitempty"`
	TraceId    string                 `json:"trace_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Key is the canonical aggregation key for the entry.
func (e LogEntry) Key() string {
	return e.Method + " " + e.Endpoint
}

// IsError reports whether the call failed from the client's perspective.
func (e LogEntry) IsError() bool {
	return e.StatusCode >= 400
}

// PipelineResult is the orchestrator's terminal value for one ingestion.
type PipelineResult struct {
	Success         bool                      `json:"success"`
	LogId           string                    `json:"log_id"`
	AnalysisSummary *string                   `json:"analysis_summary,omitempty"`
	Score           anomalyModel.AnomalyScore `json:"anomaly_score"`
	ProcessingTime  time.Duration             `json:"-"`
	Degraded        bool                      `json:"degraded"`
	DegradedStages  []string                  `json:"degraded_stages,omitempty"`
}

// ValidationError rejects malformed input before any side effects occur.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Detail)
}

// Validate applies the structural and range checks of the ingestion
// contract: status 100-599, non-negative finite latency, non-empty
// endpoint and method.
func (r IngestRequest) Validate() *ValidationError {
	if r.Endpoint == "" {
		return &ValidationError{Field: "endpoint", Detail: "must not be empty"}
	}
	if r.Method == "" {
		return &ValidationError{Field: "method", Detail: "must not be empty"}
	}
	if r.StatusCode < 100 || r.StatusCode > 599 {
		return &ValidationError{
			Field:  "status_code",
			Detail: fmt.Sprintf("%d is outside the valid range 100-599", r.StatusCode),
		}
	}
	if r.Latency < 0 || math.IsNaN(r.Latency) || math.IsInf(r.Latency, 0) {
		return &ValidationError{Field: "latency", Detail: "must be a non-negative number"}
	}
	return nil
}
