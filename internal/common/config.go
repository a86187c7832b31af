package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Ollama     OllamaConfig     `yaml:"ollama"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
	Web        WebConfig        `yaml:"web"`

	OutputDir    string `yaml:"output_dir"`
	TaskDB       string `yaml:"task_db"`
	SystemPrompt string `yaml:"system_prompt"`
}

// OllamaConfig describes the inference endpoint and the retry discipline
// applied to it.
type OllamaConfig struct {
	URL            string  `yaml:"url"`
	ModelName      string  `yaml:"model_name"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	BackoffSeconds int     `yaml:"backoff_base_seconds"`
	NumPredict     int     `yaml:"num_predict"`
	Temperature    float32 `yaml:"temperature"`
	// RetryAll widens the retry predicate from timeouts-only to every
	// transport error.
	RetryAll bool `yaml:"retry_all"`
}

func (c OllamaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c OllamaConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

// ProcessingConfig controls the batch worker pool and column policy.
type ProcessingConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	// MaxRows caps how many input rows a run processes; 0 means all.
	MaxRows        int      `yaml:"max_rows_to_process"`
	IgnoredColumns []string `yaml:"ignored_columns"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
	Dir    string `yaml:"log_dir"`
}

type WebConfig struct {
	Addr              string   `yaml:"addr"`
	UploadFolder      string   `yaml:"upload_folder"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// DefaultConfig returns the configuration used when keys are absent.
func DefaultConfig() Config {
	return Config{
		Ollama: OllamaConfig{
			URL:            "http://localhost:11434/api/generate",
			ModelName:      "qwen2.5:7b",
			TimeoutSeconds: 30,
			MaxRetries:     3,
			BackoffSeconds: 5,
			NumPredict:     500,
			Temperature:    0.0,
		},
		Processing: ProcessingConfig{
			MaxWorkers: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    "logs",
		},
		Web: WebConfig{
			Addr:              ":8080",
			UploadFolder:      "uploads",
			AllowedExtensions: []string{"xlsx", "xls"},
		},
		OutputDir: "results",
		TaskDB:    "tasks.db",
	}
}

// LoadConfig reads the YAML config file at path, falling back to defaults
// for absent keys, then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
			// Missing file is fine; defaults plus env apply.
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Ollama.URL = getEnv("OLLAMA_URL", cfg.Ollama.URL)
	cfg.Ollama.ModelName = getEnv("OLLAMA_MODEL", cfg.Ollama.ModelName)
	cfg.Ollama.TimeoutSeconds = getEnvAsInt("OLLAMA_TIMEOUT_SECONDS", cfg.Ollama.TimeoutSeconds)
	cfg.Ollama.MaxRetries = getEnvAsInt("OLLAMA_MAX_RETRIES", cfg.Ollama.MaxRetries)
	cfg.Processing.MaxWorkers = getEnvAsInt("MAX_WORKERS", cfg.Processing.MaxWorkers)
	cfg.Web.Addr = getEnv("WEB_ADDR", cfg.Web.Addr)
	cfg.OutputDir = getEnv("OUTPUT_DIR", cfg.OutputDir)
	cfg.TaskDB = getEnv("TASK_DB", cfg.TaskDB)

	return cfg, nil
}

// SaveConfig writes the configuration back to path. The dashboard's config
// editor round-trips through this.
func SaveConfig(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations that cannot work at all.
func (c *Config) Validate() error {
	if c.Ollama.URL == "" {
		return NewAppError("CONFIG_ERROR", "ollama.url is required", ErrInvalidInput)
	}
	if c.Ollama.ModelName == "" {
		return NewAppError("CONFIG_ERROR", "ollama.model_name is required", ErrInvalidInput)
	}
	if c.Ollama.MaxRetries < 0 {
		return NewAppError("CONFIG_ERROR", "ollama.max_retries must be >= 0", ErrInvalidInput)
	}
	if c.Processing.MaxWorkers <= 0 {
		return NewAppError("CONFIG_ERROR", "processing.max_workers must be > 0", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
