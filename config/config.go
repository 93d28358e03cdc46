package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CompletionMarker names a file whose upload under <artifacts>/<Dir> marks a run as done
type CompletionMarker struct {
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
}

// Config holds the runner configuration
type Config struct {
	// AWS
	AWSRegion string `yaml:"region"`

	// Runner
	LogTableName               string             `yaml:"log_table_name"`
	KernelName                 string             `yaml:"kernel_name"`
	WorkRoot                   string             `yaml:"work_root"`
	ModelArtifactTableTemplate string             `yaml:"model_artifact_table_template"`
	PapermillBin               string             `yaml:"papermill_bin"`
	DefaultNotebooks           map[string]string  `yaml:"default_notebooks"`
	CompletionMarkers          []CompletionMarker `yaml:"completion_markers"`
	InstanceType               string             `yaml:"instance_type"`

	// Database (optional run ledger)
	DatabaseURL       string `yaml:"database_url"`
	DatabaseURLSecret string `yaml:"database_url_secret"`

	// Server
	ServerPort       string   `yaml:"server_port"`
	// ExperimentTables are the tables the API may read experiment records from
	ExperimentTables []string `yaml:"experiment_tables"`

	LogMode string `yaml:"log_mode"`
}

const modelTypePlaceholder = "model-type"

// DefaultCompletionMarkers are the outputs of the training and inference notebooks
var DefaultCompletionMarkers = []CompletionMarker{
	{Dir: "model", File: "model.pkl"},
	{Dir: "df", File: "inferred_df_part0.parquet"},
}

func defaults() *Config {
	return &Config{
		LogTableName:               "automl-logs",
		KernelName:                 "conda_lightgbm311",
		WorkRoot:                   "./work",
		ModelArtifactTableTemplate: "automl-model-type-experiment-result",
		PapermillBin:               "papermill",
		DefaultNotebooks:           map[string]string{},
		CompletionMarkers:          DefaultCompletionMarkers,
		ServerPort:                 "8080",
		LogMode:                    "dev",
	}
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile loads the YAML file at path over the defaults, then applies
// environment overrides. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if len(cfg.CompletionMarkers) == 0 {
		cfg.CompletionMarkers = DefaultCompletionMarkers
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.AWSRegion = getEnv("AWS_REGION", getEnv("AWS_DEFAULT_REGION", c.AWSRegion))
	c.LogTableName = getEnv("LOG_TABLE_NAME", c.LogTableName)
	c.KernelName = getEnv("KERNEL_NAME", c.KernelName)
	c.WorkRoot = getEnv("WORK_ROOT", c.WorkRoot)
	c.PapermillBin = getEnv("PAPERMILL_BIN", c.PapermillBin)
	// SageMaker exposes the host instance type to training containers
	c.InstanceType = getEnv("INSTANCE_TYPE", getEnv("SM_CURRENT_INSTANCE_TYPE", c.InstanceType))
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DatabaseURLSecret = getEnv("DATABASE_URL_SECRET", c.DatabaseURLSecret)
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	if tables := getEnv("EXPERIMENT_TABLES", ""); tables != "" {
		c.ExperimentTables = splitList(tables)
	}
	c.LogMode = getEnv("LOG_MODE", c.LogMode)
}

// AllowsExperimentTable reports whether table is one of ExperimentTables
func (c *Config) AllowsExperimentTable(table string) bool {
	for _, t := range c.ExperimentTables {
		if t == table {
			return true
		}
	}
	return false
}

// ModelArtifactTable returns the result table holding artifacts of the given model type
func (c *Config) ModelArtifactTable(modelType string) string {
	return strings.Replace(c.ModelArtifactTableTemplate, modelTypePlaceholder, modelType, 1)
}

// DefaultNotebook returns the configured notebook for a job type
func (c *Config) DefaultNotebook(jobType string) (string, bool) {
	nb, ok := c.DefaultNotebooks[jobType]
	return nb, ok && nb != ""
}

// splitList splits a comma-separated value, dropping empty entries
func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
