package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		App           App           `yaml:"app"`
		Log           Log           `yaml:"log"`
		Elasticsearch Elasticsearch `yaml:"elasticsearch"`
		LLM           LLM           `yaml:"llm"`
		Embedding     Embedding     `yaml:"embedding"`
		Store         Store         `yaml:"store"`
		Anomaly       Anomaly       `yaml:"anomaly"`
		Hub           Hub           `yaml:"hub"`
	}

	App struct {
		Host string `yaml:"host" env:"APP_HOST" env-default:"0.0.0.0"`
		Port string `yaml:"port" env:"APP_PORT" env-default:"8080"`
	}

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	}

	Elasticsearch struct {
		URL string `yaml:"url" env:"ELASTICSEARCH_URL" env-default:"http://localhost:9200"`
	}

	LLM struct {
		BaseURL string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:"https://api.groq.com/openai/v1"`
		APIKey  string        `yaml:"api_key" env:"LLM_API_KEY"`
		Model   string        `yaml:"model" env:"LLM_MODEL" env-default:"llama-3.3-70b-versatile"`
		Timeout time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"5s"`
	}

	Embedding struct {
		BaseURL   string        `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:"http://localhost:8081/v1"`
		APIKey    string        `yaml:"api_key" env:"EMBEDDING_API_KEY"`
		Model     string        `yaml:"model" env:"EMBEDDING_MODEL" env-default:"all-MiniLM-L6-v2"`
		Dimension int           `yaml:"dimension" env:"EMBEDDING_DIMENSION" env-default:"384"`
		Timeout   time.Duration `yaml:"timeout" env:"EMBEDDING_TIMEOUT" env-default:"3s"`
	}

	Store struct {
		Timeout        time.Duration `yaml:"timeout" env:"STORE_TIMEOUT" env-default:"2s"`
		FlushThreshold int           `yaml:"flush_threshold" env:"STORE_FLUSH_THRESHOLD" env-default:"50"`
		FlushInterval  time.Duration `yaml:"flush_interval" env:"STORE_FLUSH_INTERVAL" env-default:"5s"`
	}

	Anomaly struct {
		ZThreshold float64 `yaml:"z_threshold" env:"ANOMALY_Z_THRESHOLD" env-default:"2.5"`
		MinSamples int     `yaml:"min_samples" env:"ANOMALY_MIN_SAMPLES" env-default:"5"`
	}

	Hub struct {
		QueueSize        int           `yaml:"queue_size" env:"HUB_QUEUE_SIZE" env-default:"64"`
		HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" env:"HUB_HEARTBEAT_TIMEOUT" env-default:"30s"`
		KPIInterval      time.Duration `yaml:"kpi_interval" env:"HUB_KPI_INTERVAL" env-default:"10s"`
	}
)

// New loads configuration from the optional yaml file referenced by
// APP_CONFIG_PATH plus environment variables, with a best-effort .env load.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path, ok := os.LookupEnv("APP_CONFIG_PATH"); ok && path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	return cfg, nil
}
