package model

import (
	"encoding/json"
	"strings"
)

// Severity is the graded seriousness of an anomaly, ordered so that
// comparisons with < and > follow the escalation scale.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "NONE"
	}
}

func ParseSeverity(raw string) Severity {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOW":
		return SeverityLow
	case "MEDIUM":
		return SeverityMedium
	case "HIGH":
		return SeverityHigh
	case "CRITICAL":
		return SeverityCritical
	default:
		return SeverityNone
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

func MaxSeverity(a Severity, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// SemanticVerdict is the analyzer's opinion on a single log entry. It is
// only present when the external analyzer responded within its deadline.
type SemanticVerdict struct {
	IsAnomaly  bool     `json:"is_anomaly"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// AnomalyScore is the immutable detection result for one log entry.
type AnomalyScore struct {
	IsAnomaly       bool             `json:"is_anomaly"`
	Severity        Severity         `json:"severity"`
	Confidence      float64          `json:"confidence"`
	Reason          string           `json:"reason"`
	ZScore          *float64         `json:"z_score,omitempty"`
	SemanticVerdict *SemanticVerdict `json:"semantic_verdict,omitempty"`
}
