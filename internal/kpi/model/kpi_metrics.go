package model

import (
	"fmt"
	"time"
)

// TimeRange is one of the supported aggregation horizons.
type TimeRange string

const (
	Range1h  TimeRange = "1h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

func (tr TimeRange) Duration() time.Duration {
	switch tr {
	case Range1h:
		return time.Hour
	case Range24h:
		return 24 * time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

func ParseTimeRange(raw string) (TimeRange, error) {
	switch TimeRange(raw) {
	case Range1h, Range24h, Range7d, Range30d:
		return TimeRange(raw), nil
	case "":
		return Range1h, nil
	default:
		return "", fmt.Errorf("unsupported time range %q", raw)
	}
}

// KPIMetrics is a consistent aggregate over one key and time range.
type KPIMetrics struct {
	TotalRequests int64     `json:"total_requests"`
	SuccessCount  int64     `json:"success_count"`
	ErrorCount    int64     `json:"error_count"`
	SuccessRate   float64   `json:"success_rate"`
	ErrorRate     float64   `json:"error_rate"`
	AvgLatency    float64   `json:"avg_latency"`
	P50Latency    float64   `json:"p50_latency"`
	P95Latency    float64   `json:"p95_latency"`
	P99Latency    float64   `json:"p99_latency"`
	MaxLatency    float64   `json:"max_latency"`
	TimeRange     TimeRange `json:"time_range"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Endpoint      string    `json:"endpoint,omitempty"`
}

// WindowSnapshot is the detector-facing view of one key's recent window.
// It is a copy: readers never observe partially updated window state.
type WindowSnapshot struct {
	Key         string  `json:"key"`
	SampleCount int64   `json:"sample_count"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	P95         float64 `json:"p95"`
	P99         float64 `json:"p99"`
	Max         float64 `json:"max"`
}
