package models

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name string
		ts   int64
		want string
	}{
		{"epoch", 0, "1970-01-01 09:00:00"},
		{"crosses midnight", 1700000000, "2023-11-15 07:13:20"},
		{"late utc evening", 1704121200, "2024-01-02 00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatTimestamp(tt.ts); got != tt.want {
				t.Errorf("FormatTimestamp(%d) = %q, want %q", tt.ts, got, tt.want)
			}
		})
	}
}

func TestManifestContains(t *testing.T) {
	m := Manifest{
		"p1/e1/artifacts/model": {"model.pkl", "params.json"},
		"p1/e1/artifacts":       {},
	}

	if !m.Contains("p1/e1/artifacts/model", "model.pkl") {
		t.Error("expected model.pkl under model prefix")
	}
	if m.Contains("p1/e1/artifacts", "model.pkl") {
		t.Error("model.pkl must not match a different prefix")
	}
	if m.Contains("missing", "model.pkl") {
		t.Error("missing prefix must not contain anything")
	}
	if got := m.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	if got := m.Prefixes(); got[0] != "p1/e1/artifacts" {
		t.Errorf("Prefixes() not sorted: %v", got)
	}
}

func TestRunLog(t *testing.T) {
	l := NewRunLog()
	l.Add("first")
	l.AddError("download", errors.New("no such key"))
	l.AddError("upload", nil)

	msgs := l.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d: %v", len(msgs), msgs)
	}
	if msgs[1] != "download: no such key" {
		t.Errorf("unexpected message %q", msgs[1])
	}

	msgs[0] = "mutated"
	if l.Messages()[0] != "first" {
		t.Error("Messages() must return a copy")
	}
}

func TestRunParamsValidate(t *testing.T) {
	p := RunParams{ProjectHashkey: "p1", ExperimentHashkey: "e1", ExperimentTableName: "exp", JobType: "training"}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	err := RunParams{ProjectHashkey: "p1"}.Validate()
	if err == nil {
		t.Fatal("expected error for missing parameters")
	}
	for _, field := range []string{"experiment_hashkey", "experiment_table_name", "job_type"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestModelRepoNotebook(t *testing.T) {
	m := &ModelRepo{ModelHashkey: "m1"}
	m.SetNotebooks(map[string]interface{}{
		"training_ipynb":  "train.ipynb",
		"inference_ipynb": "infer.ipynb",
		"bucket_name":     "b",
		"eval_ipynb":      42,
	})

	if nb, ok := m.Notebook("training"); !ok || nb != "train.ipynb" {
		t.Errorf("Notebook(training) = %q, %v", nb, ok)
	}
	if _, ok := m.Notebook("eval"); ok {
		t.Error("non-string attribute must be ignored")
	}

	var nilRepo *ModelRepo
	if _, ok := nilRepo.Notebook("training"); ok {
		t.Error("nil repo must not resolve a notebook")
	}
}

func TestResultStatus(t *testing.T) {
	if got := (&Result{ExperimentDone: true}).Status(); got != StatusCompleted {
		t.Errorf("Status() = %q", got)
	}
	if got := (&Result{}).Status(); got != StatusFailed {
		t.Errorf("Status() = %q", got)
	}
}

func TestModelRepoFromItem(t *testing.T) {
	m := ModelRepoFromItem(map[string]interface{}{
		"model_hashkey":   "m1",
		"bucket_name":     "models",
		"s3_zip_key_path": "repo/lightgbm",
		"training_ipynb":  "train.ipynb",
	})
	if m.ModelHashkey != "m1" || m.BucketName != "models" || m.ZipKeyPath != "repo/lightgbm" {
		t.Errorf("unexpected model repo: %+v", m)
	}
	if nb, ok := m.Notebook("training"); !ok || nb != "train.ipynb" {
		t.Errorf("Notebook(training) = %q, %v", nb, ok)
	}
}
