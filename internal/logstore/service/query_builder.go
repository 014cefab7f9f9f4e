package service

import (
	"time"

	anomalyModel "github.com/pulselog/pulselog/internal/anomaly/model"
)

func getRecentLogsQuery(endpoint string) map[string]interface{} {
	var mustClauses []map[string]interface{}

	if endpoint != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"term": map[string]interface{}{
				"endpoint": endpoint,
			},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": mustClauses,
			},
		},
		"sort": []map[string]interface{}{
			{
				"created_at": map[string]interface{}{
					"order": "desc",
				},
			},
		},
	}

	return query
}

func getAnomaliesQuery(
	severity anomalyModel.Severity,
	startTime time.Time,
	endTime time.Time,
) map[string]interface{} {
	mustClauses := []map[string]interface{}{
		{
			"range": map[string]interface{}{
				"created_at": map[string]interface{}{
					"gte": startTime.Format(time.RFC3339Nano),
					"lte": endTime.Format(time.RFC3339Nano),
				},
			},
		},
	}

	if severity != anomalyModel.SeverityNone {
		mustClauses = append(mustClauses, map[string]interface{}{
			"term": map[string]interface{}{
				"anomaly_severity": severity.String(),
			},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": mustClauses,
			},
		},
		"sort": []map[string]interface{}{
			{
				"created_at": map[string]interface{}{
					"order": "desc",
				},
			},
		},
	}

	return query
}

func getAnomalyCountQuery(startTime time.Time, endTime time.Time) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"created_at": map[string]interface{}{
					"gte": startTime.Format(time.RFC3339Nano),
					"lte": endTime.Format(time.RFC3339Nano),
				},
			},
		},
	}
}
