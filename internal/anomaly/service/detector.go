package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/pulselog/pulselog/internal/anomaly/model"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	pipelineModel "github.com/pulselog/pulselog/internal/pipeline/model"
	"go.uber.org/zap"
)

const (
	// DefaultZThreshold is the |z| above which latency alone flags an entry.
	DefaultZThreshold = 2.5
	// DefaultMinSamples is the baseline size below which the standard
	// deviation is considered degenerate.
	DefaultMinSamples = 5

	degenerateStdDev    = 1e-9
	ruleOnlyConfidence  = 0.6
	baselineConfidence  = 0.5
	maxConfidence       = 0.95
	confidencePerZ      = 0.1
	highZForServerError = 3.0
)

// Detector fuses statistical outlier tests with an optional semantic
// verdict into a severity-graded score.
type Detector interface {
	Detect(
		entry pipelineModel.LogEntry,
		window kpiModel.WindowSnapshot,
		verdict *model.SemanticVerdict,
	) model.AnomalyScore
}

type DetectorImpl struct {
	zThreshold float64
	minSamples int64
	logger     *zap.Logger
}

func NewDetector(zThreshold float64, minSamples int, logger *zap.Logger) *DetectorImpl {
	if zThreshold <= 0 {
		zThreshold = DefaultZThreshold
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &DetectorImpl{
		zThreshold: zThreshold,
		minSamples: int64(minSamples),
		logger:     logger,
	}
}

func (d *DetectorImpl) Detect(
	entry pipelineModel.LogEntry,
	window kpiModel.WindowSnapshot,
	verdict *model.SemanticVerdict,
) model.AnomalyScore {
	zScore, hasBaseline := d.latencyZScore(entry.Latency, window)

	var triggers []string
	serverError := entry.StatusCode >= 500
	clientError := entry.StatusCode >= 400 && entry.StatusCode < 500
	latencyOutlier := hasBaseline && math.Abs(zScore) >= d.zThreshold
	slowClientError := clientError && hasBaseline && window.P95 > 0 && entry.Latency > window.P95

	if latencyOutlier {
		triggers = append(triggers, d.latencyTrigger(entry.Latency, zScore, window))
	}
	if serverError {
		triggers = append(triggers, fmt.Sprintf("server error %d", entry.StatusCode))
	} else if slowClientError {
		triggers = append(triggers, fmt.Sprintf(
			"client error %d with latency above P95 %.0fms", entry.StatusCode, window.P95))
	}

	statFlag := latencyOutlier || serverError || slowClientError
	severity := d.statisticalSeverity(zScore, hasBaseline, serverError, latencyOutlier)
	if statFlag && severity == model.SeverityNone {
		severity = model.SeverityLow
	}
	confidence := 0.0
	if statFlag {
		confidence = ruleOnlyConfidence
		if hasBaseline {
			confidence = math.Min(maxConfidence, ruleOnlyConfidence+math.Abs(zScore)*confidencePerZ)
		}
	}

	score := model.AnomalyScore{
		IsAnomaly:  statFlag,
		Severity:   severity,
		Confidence: confidence,
		Reason:     "within normal range",
	}
	if hasBaseline {
		z := zScore
		score.ZScore = &z
	}
	if len(triggers) > 0 {
		score.Reason = strings.Join(triggers, ", ")
	}

	return d.fuse(score, verdict)
}

// latencyZScore returns the z-score of the latency against the window, or
// false when the key has no usable baseline. A degenerate standard
// deviation falls back to the P95-based proxy spread, preserving the
// original detector's behavior.
func (d *DetectorImpl) latencyZScore(latency float64, window kpiModel.WindowSnapshot) (float64, bool) {
	if window.SampleCount < d.minSamples {
		return 0, false
	}
	if window.StdDev > degenerateStdDev {
		return (latency - window.Mean) / window.StdDev, true
	}
	proxySpread := math.Max(window.P95-window.Mean, 1.0)
	return (latency - window.P95) / proxySpread, true
}

func (d *DetectorImpl) statisticalSeverity(
	zScore float64,
	hasBaseline bool,
	serverError bool,
	latencyOutlier bool,
) model.Severity {
	absZ := math.Abs(zScore)
	switch {
	case hasBaseline && absZ >= 5:
		return model.SeverityCritical
	case serverError && hasBaseline && absZ >= highZForServerError:
		return model.SeverityCritical
	case serverError:
		return model.SeverityHigh
	case hasBaseline && absZ >= 4:
		return model.SeverityHigh
	case hasBaseline && absZ >= 3:
		return model.SeverityMedium
	case latencyOutlier:
		return model.SeverityLow
	default:
		return model.SeverityNone
	}
}

// fuse applies the max-fusion rule: a semantic verdict can raise severity
// but never suppress a statistical flag.
func (d *DetectorImpl) fuse(score model.AnomalyScore, verdict *model.SemanticVerdict) model.AnomalyScore {
	if verdict == nil {
		return score
	}
	score.SemanticVerdict = verdict
	if !verdict.IsAnomaly {
		return score
	}
	if verdict.Severity > score.Severity {
		score.Severity = verdict.Severity
		if verdict.Reason != "" {
			score.Reason = verdict.Reason
		}
	}
	score.IsAnomaly = true
	if score.Confidence == 0 {
		score.Confidence = baselineConfidence
	}
	score.Confidence = math.Max(score.Confidence, verdict.Confidence)
	return score
}

func (d *DetectorImpl) latencyTrigger(latency float64, zScore float64, window kpiModel.WindowSnapshot) string {
	if window.P95 > 0 && latency > window.P95 {
		return fmt.Sprintf(
			"latency %.0fms is %.1fx above P95 %.0fms", latency, latency/window.P95, window.P95)
	}
	return fmt.Sprintf("latency z-score %.1f beyond threshold %.1f", zScore, d.zThreshold)
}
