package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
	kpiModel "github.com/pulselog/pulselog/internal/kpi/model"
	pipelineModel "github.com/pulselog/pulselog/internal/pipeline/model"
	"go.uber.org/zap"
)

const analysisTemperature = 0.3
const analysisMaxTokens = 250
const defaultVerdictConfidence = 0.7
const verdictPrefix = "VERDICT:"

const systemPrompt = `You are an expert API monitoring system analyzer. Your role is to analyze API logs and provide concise, accurate insights.

CRITICAL RULES:
1. NO HALLUCINATION - Only analyze the data provided
2. BE CONCISE - Keep responses brief and actionable
3. KPI AWARENESS - Focus on latency, errors, and performance patterns
4. NO SPECULATION - If data is insufficient, state it clearly

Format your response as a brief summary followed by a final verdict line.`

// Analysis is the analyzer's output for one log entry. Verdict is nil
// when the model declined to give one or its answer was unparseable.
type Analysis struct {
	Summary string
	Verdict *anomalyModel.SemanticVerdict
}

// SemanticAnalyzer produces a natural-language summary and an optional
// anomaly verdict for a log entry against its window baseline.
type SemanticAnalyzer interface {
	Analyze(
		ctx context.Context,
		entry pipelineModel.LogEntry,
		window kpiModel.WindowSnapshot,
	) (Analysis, error)
}

// GroqAnalyzer calls an OpenAI-compatible chat-completions endpoint.
type GroqAnalyzer struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGroqAnalyzer(
	baseURL string,
	apiKey string,
	model string,
	timeout time.Duration,
	logger *zap.Logger,
) *GroqAnalyzer {
	return &GroqAnalyzer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *GroqAnalyzer) Analyze(
	ctx context.Context,
	entry pipelineModel.LogEntry,
	window kpiModel.WindowSnapshot,
) (Analysis, error) {
	payload, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(entry, window)},
		},
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.baseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	res, err := a.httpClient.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Analysis{}, fmt.Errorf("chat request failed with status %d", res.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return Analysis{}, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Analysis{}, fmt.Errorf("chat response contained no choices")
	}

	summary, verdict := parseAnalysis(decoded.Choices[0].Message.Content)
	if verdict == nil {
		a.logger.Debug("Analyzer response carried no parseable verdict")
	}
	return Analysis{Summary: summary, Verdict: verdict}, nil
}

func buildUserPrompt(entry pipelineModel.LogEntry, window kpiModel.WindowSnapshot) string {
	errorText := entry.Error
	if errorText == "" {
		errorText = "None"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this API log entry:\n\n")
	fmt.Fprintf(&b, "Endpoint: %s\nMethod: %s\nStatus Code: %d\nLatency: %.0fms\nError: %s\nTimestamp: %s\n\n",
		entry.Endpoint, entry.Method, entry.StatusCode, entry.Latency, errorText,
		entry.CreatedAt.UTC().Format(time.RFC3339))
	if window.SampleCount > 0 {
		fmt.Fprintf(&b, "Historical Context:\n- Average Latency: %.0fms\n- P95 Latency: %.0fms\n- Samples: %d\n\n",
			window.Mean, window.P95, window.SampleCount)
	}
	b.WriteString("Provide a concise analysis (under 100 words) covering health, anomalies and recommended action.\n")
	b.WriteString("End with exactly one line:\n")
	b.WriteString("VERDICT: YES | <LOW|MEDIUM|HIGH|CRITICAL> | <confidence 0-1> | <one sentence reason>\n")
	b.WriteString("or, if the entry looks normal:\n")
	b.WriteString("VERDICT: NO")
	return b.String()
}

// parseAnalysis splits the model output into the prose summary and the
// trailing verdict line. Output without a well-formed verdict keeps the
// whole text as summary and yields no verdict.
func parseAnalysis(content string) (string, *anomalyModel.SemanticVerdict) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToUpper(line), verdictPrefix) {
			break
		}
		summary := strings.TrimSpace(strings.Join(lines[:i], "\n"))
		return summary, parseVerdict(line[len(verdictPrefix):])
	}
	return strings.TrimSpace(content), nil
}

func parseVerdict(raw string) *anomalyModel.SemanticVerdict {
	parts := strings.Split(raw, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	answer := strings.ToUpper(parts[0])
	if answer == "NO" {
		return &anomalyModel.SemanticVerdict{Reason: "model judged entry normal"}
	}
	if answer != "YES" || len(parts) < 2 {
		return nil
	}

	severity := anomalyModel.ParseSeverity(parts[1])
	if severity == anomalyModel.SeverityNone {
		return nil
	}

	confidence := defaultVerdictConfidence
	reason := ""
	if len(parts) >= 3 {
		if parsed, err := strconv.ParseFloat(parts[2], 64); err == nil && parsed >= 0 && parsed <= 1 {
			confidence = parsed
			if len(parts) >= 4 {
				reason = parts[3]
			}
		} else {
			reason = strings.Join(parts[2:], " | ")
		}
	}

	return &anomalyModel.SemanticVerdict{
		IsAnomaly:  true,
		Severity:   severity,
		Confidence: confidence,
		Reason:     reason,
	}
}
