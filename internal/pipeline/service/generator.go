package service

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/pulselog/pulselog/internal/pipeline/model"
)

var syntheticEndpoints = []string{
	"/api/v1/generate-email",
	"/api/v1/summarize-text",
	"/api/v1/translate",
	"/api/v1/chat",
	"/api/v1/code-completion",
}

var syntheticMethods = []string{"POST", "GET"}

// Weighted towards success so the generated stream resembles a healthy
// service with occasional failures.
var syntheticStatusCodes = []int{200, 200, 200, 201, 400, 401, 403, 404, 500}

// Generator produces synthetic log records for demos and load testing.
type Generator struct {
	mu     sync.Mutex
	random *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		random: rand.New(rand.NewSource(seed)),
	}
}

// Next builds one random, always-valid ingestion request. Server errors
// get an extra latency penalty so they stand out against the baseline.
func (g *Generator) Next() model.IngestRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	statusCode := syntheticStatusCodes[g.random.Intn(len(syntheticStatusCodes))]
	latency := 50 + g.random.Float64()*450
	if statusCode >= 500 {
		latency += 500 + g.random.Float64()*1500
	}

	userId := fmt.Sprintf("user_%d", g.random.Intn(100)+1)
	traceId := uuid.NewString()
	var errorText *string
	if statusCode >= 500 {
		message := "internal server error"
		errorText = &message
	}

	return model.IngestRequest{
		Endpoint:   syntheticEndpoints[g.random.Intn(len(syntheticEndpoints))],
		Method:     syntheticMethods[g.random.Intn(len(syntheticMethods))],
		StatusCode: statusCode,
		Latency:    latency,
		Error:      errorText,
		UserId:     &userId,
		TraceId:    &traceId,
	}
}
