package bootstrapper

const LogIndexName = "api_log_index"
const AnomalyIndexName = "anomaly_index"
const VectorIndexName = "log_vector_index"

var logIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"endpoint":           map[string]interface{}{"type": "keyword"},
			"method":             map[string]interface{}{"type": "keyword"},
			"status_code":        map[string]interface{}{"type": "integer"},
			"latency":            map[string]interface{}{"type": "float"},
			"error":              map[string]interface{}{"type": "text"},
			"user_id":            map[string]interface{}{"type": "keyword"},
			"trace_id":           map[string]interface{}{"type": "keyword"},
			"created_at":         map[string]interface{}{"type": "date"},
			"analysis_summary":   map[string]interface{}{"type": "text"},
			"is_anomaly":         map[string]interface{}{"type": "boolean"},
			"anomaly_severity":   map[string]interface{}{"type": "keyword"},
			"anomaly_confidence": map[string]interface{}{"type": "float"},
			"anomaly_reason":     map[string]interface{}{"type": "text"},
			"z_score":            map[string]interface{}{"type": "float"},
		},
	},
}

var anomalyIndex = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 1,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"log_id":             map[string]interface{}{"type": "keyword"},
			"endpoint":           map[string]interface{}{"type": "keyword"},
			"method":             map[string]interface{}{"type": "keyword"},
			"status_code":        map[string]interface{}{"type": "integer"},
			"latency":            map[string]interface{}{"type": "float"},
			"created_at":         map[string]interface{}{"type": "date"},
			"analysis_summary":   map[string]interface{}{"type": "text"},
			"anomaly_severity":   map[string]interface{}{"type": "keyword"},
			"anomaly_confidence": map[string]interface{}{"type": "float"},
			"anomaly_reason":     map[string]interface{}{"type": "text"},
			"z_score":            map[string]interface{}{"type": "float"},
		},
	},
}

func vectorIndex(dimension int) map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"embedding": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dimension,
					"index":      true,
					"similarity": "cosine",
				},
				"log_id":           map[string]interface{}{"type": "keyword"},
				"endpoint":         map[string]interface{}{"type": "keyword"},
				"method":           map[string]interface{}{"type": "keyword"},
				"status_code":      map[string]interface{}{"type": "integer"},
				"latency":          map[string]interface{}{"type": "float"},
				"created_at":       map[string]interface{}{"type": "date"},
				"is_anomaly":       map[string]interface{}{"type": "boolean"},
				"anomaly_severity": map[string]interface{}{"type": "keyword"},
			},
		},
	}
}
