package spec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseExperimentConfig(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantParams int
		wantKernel string
		wantErr    bool
	}{
		{
			name:       "parameters and kernel",
			doc:        "kernel_name: conda_py3\nparameters:\n  target: Survived\n  num_leaves: 31\ntarget_col: Survived\n",
			wantParams: 2,
			wantKernel: "conda_py3",
		},
		{
			name: "no parameters",
			doc:  "target_col: Survived\n",
		},
		{
			name:    "invalid yaml",
			doc:     "parameters: [unclosed\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseExperimentConfig([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(cfg.Parameters) != tt.wantParams {
				t.Errorf("got %d parameters, want %d", len(cfg.Parameters), tt.wantParams)
			}
			if cfg.Kernel != tt.wantKernel {
				t.Errorf("Kernel = %q, want %q", cfg.Kernel, tt.wantKernel)
			}
		})
	}
}

func TestLoadExperimentConfigMissing(t *testing.T) {
	cfg, err := LoadExperimentConfig(filepath.Join(t.TempDir(), "config.yml"))
	if err != nil {
		t.Fatalf("LoadExperimentConfig: %v", err)
	}
	params, err := cfg.ParametersYAML()
	if err != nil || params != "" {
		t.Errorf("ParametersYAML = %q, %v", params, err)
	}
}

func TestParametersYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("parameters:\n  target: Survived\n  rounds: 100\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadExperimentConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	out, err := cfg.ParametersYAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "target: Survived") {
		t.Errorf("missing target in %q", out)
	}

	var back map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &back); err != nil {
		t.Fatal(err)
	}
	if back["rounds"] != 100 {
		t.Errorf("rounds = %v", back["rounds"])
	}
}
