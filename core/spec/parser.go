package spec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ExperimentConfig is the per-experiment modeling config (config.yml) staged
// into input/conf. Only the keys the runner acts on are typed; the notebook
// reads the file itself.
type ExperimentConfig struct {
	// Parameters are injected into the notebook's parameters cell
	Parameters map[string]interface{} `yaml:"parameters"`
	Kernel     string                 `yaml:"kernel_name,omitempty"`
}

// ParseExperimentConfig parses a config.yml document
func ParseExperimentConfig(data []byte) (*ExperimentConfig, error) {
	var cfg ExperimentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for name := range cfg.Parameters {
		if name == "" {
			return nil, fmt.Errorf("parameter with empty name")
		}
	}
	return &cfg, nil
}

// LoadExperimentConfig reads and parses config.yml at path. A missing file
// yields an empty config.
func LoadExperimentConfig(path string) (*ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ExperimentConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseExperimentConfig(data)
}

// ParametersYAML renders the notebook parameters as a YAML mapping, or ""
// when there are none
func (c *ExperimentConfig) ParametersYAML() (string, error) {
	if c == nil || len(c.Parameters) == 0 {
		return "", nil
	}
	out, err := yaml.Marshal(c.Parameters)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	return string(out), nil
}
