package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"experiment-runner/config"
	"experiment-runner/core/logger"
	"experiment-runner/core/models"
)

// fakeStore keeps items per table keyed by the joined key values
type fakeStore struct {
	items  map[string]map[string]map[string]interface{}
	failOn map[string]error
	puts   map[string][]interface{}
	putErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:  map[string]map[string]map[string]interface{}{},
		failOn: map[string]error{},
		puts:   map[string][]interface{}{},
	}
}

func itemKey(key map[string]string) string {
	parts := []string{}
	for _, k := range []string{"project_hashkey", "experiment_hashkey", "file_hashkey", "model_hashkey"} {
		if v, ok := key[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, ",")
}

func (s *fakeStore) add(table string, key map[string]string, item map[string]interface{}) {
	if s.items[table] == nil {
		s.items[table] = map[string]map[string]interface{}{}
	}
	s.items[table][itemKey(key)] = item
}

func (s *fakeStore) GetItem(_ context.Context, table string, key map[string]string, out interface{}) (bool, error) {
	if err, ok := s.failOn[table]; ok {
		return false, err
	}
	item, ok := s.items[table][itemKey(key)]
	if !ok {
		return false, nil
	}
	data, _ := json.Marshal(item)
	return true, json.Unmarshal(data, out)
}

func (s *fakeStore) PutItem(_ context.Context, table string, item interface{}) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.puts[table] = append(s.puts[table], item)
	return nil
}

func baseParams() models.RunParams {
	return models.RunParams{
		ProjectHashkey:          "p1",
		ExperimentHashkey:       "e1",
		ProfileHashkey:          "pr1",
		ExperimentTableName:     "experiments",
		DatasetTableName:        "datasets",
		DatasetProfileTableName: "profiles",
		ModelRepoTableName:      "models",
		Username:                "kim",
		JobType:                 "training",
	}
}

func newTestFetcher(store ItemStore) *Fetcher {
	f := NewFetcher(store, config.Load(), logger.Nop())
	f.now = func() time.Time { return time.Unix(1700000000, 0) }
	return f
}

func TestFetchResolvesAllRecords(t *testing.T) {
	store := newFakeStore()
	store.add("experiments", map[string]string{"project_hashkey": "p1", "experiment_hashkey": "e1"}, map[string]interface{}{
		"project_hashkey": "p1", "experiment_hashkey": "e1", "file_hashkey": "f1",
		"model_hashkey": "m1", "model_type": "lightgbm", "model_artifact_hashkey": "e0",
		"bucket_name": "b", "s3_key_prefix": "p1/e1",
	})
	store.add("datasets", map[string]string{"project_hashkey": "p1", "file_hashkey": "f1"}, map[string]interface{}{
		"project_hashkey": "p1", "file_hashkey": "f1", "bucket_name": "data", "s3_key_df_path": "p1/df",
	})
	store.add("profiles", map[string]string{"project_hashkey": "p1", "file_hashkey": "pr1"}, map[string]interface{}{
		"project_hashkey": "p1", "file_hashkey": "pr1", "bucket_name": "data",
		"artifacts": map[string]interface{}{"p1/profile/.": []string{"summary.json"}},
	})
	store.add("automl-lightgbm-experiment-result", map[string]string{"project_hashkey": "p1", "experiment_hashkey": "e0"}, map[string]interface{}{
		"bucket_name": "b", "artifacts": map[string]interface{}{"p1/e0/artifacts/model": []string{"model.pkl"}},
	})
	store.add("models", map[string]string{"model_hashkey": "m1"}, map[string]interface{}{
		"model_hashkey": "m1", "bucket_name": "repo", "s3_zip_key_path": "lightgbm", "training_ipynb": "train.ipynb",
	})

	runLog := models.NewRunLog()
	meta, err := newTestFetcher(store).Fetch(context.Background(), "run-1", baseParams(), nil, runLog)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if meta.Dataset == nil || meta.Dataset.DFPrefix != "p1/df" {
		t.Errorf("dataset not resolved: %+v", meta.Dataset)
	}
	if meta.Profile == nil || !meta.Profile.Artifacts.Contains("p1/profile/.", "summary.json") {
		t.Errorf("profile not resolved: %+v", meta.Profile)
	}
	if meta.ModelArtifact == nil || !meta.ModelArtifact.Artifacts.Contains("p1/e0/artifacts/model", "model.pkl") {
		t.Errorf("model artifact not resolved: %+v", meta.ModelArtifact)
	}
	if nb, _ := meta.Model.Notebook("training"); nb != "train.ipynb" {
		t.Errorf("model notebook = %q", nb)
	}
	if runLog.Len() != 0 {
		t.Errorf("unexpected run log messages: %v", runLog.Messages())
	}

	logs := store.puts["automl-logs"]
	if len(logs) != 1 {
		t.Fatalf("expected one provenance entry, got %d", len(logs))
	}
	entry := logs[0].(*models.LogItem)
	if entry.RunID != "run-1" || entry.FileHashkey != "f1" || entry.CreatedDT != "2023-11-15 07:13:20" {
		t.Errorf("unexpected provenance entry: %+v", entry)
	}
}

func TestFetchMissingOptionalRecords(t *testing.T) {
	store := newFakeStore()
	store.add("experiments", map[string]string{"project_hashkey": "p1", "experiment_hashkey": "e1"}, map[string]interface{}{
		"project_hashkey": "p1", "experiment_hashkey": "e1", "file_hashkey": "f1",
		"model_hashkey": "m1", "bucket_name": "b", "s3_key_prefix": "p1/e1",
	})
	store.failOn["models"] = errors.New("throttled")

	runLog := models.NewRunLog()
	meta, err := newTestFetcher(store).Fetch(context.Background(), "run-1", baseParams(), nil, runLog)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if meta.Dataset != nil || meta.Profile != nil || meta.Model != nil || meta.ModelArtifact != nil {
		t.Errorf("expected absent related records, got %+v", meta)
	}
	if meta.Experiment.S3KeyPrefix != "p1/e1" {
		t.Errorf("experiment not resolved: %+v", meta.Experiment)
	}
	msgs := runLog.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "throttled") {
		t.Errorf("expected the model lookup failure in the run log, got %v", msgs)
	}
}

func TestFetchSkipsLookupsWithoutKeys(t *testing.T) {
	store := newFakeStore()
	store.add("experiments", map[string]string{"project_hashkey": "p1", "experiment_hashkey": "e1"}, map[string]interface{}{
		"project_hashkey": "p1", "experiment_hashkey": "e1", "bucket_name": "b", "s3_key_prefix": "p1/e1",
		"model_artifact_hashkey": "e0",
	})
	// Every related table fails; none of them may be queried.
	for _, table := range []string{"datasets", "profiles", "models", "automl-lightgbm-experiment-result"} {
		store.failOn[table] = errors.New("should not be called")
	}

	params := baseParams()
	params.ProfileHashkey = ""
	runLog := models.NewRunLog()
	if _, err := newTestFetcher(store).Fetch(context.Background(), "run-1", params, nil, runLog); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if runLog.Len() != 0 {
		t.Errorf("unexpected lookups: %v", runLog.Messages())
	}
}

func TestFetchExperimentErrors(t *testing.T) {
	t.Run("missing experiment", func(t *testing.T) {
		_, err := newTestFetcher(newFakeStore()).Fetch(context.Background(), "run-1", baseParams(), nil, models.NewRunLog())
		if !errors.Is(err, ErrExperimentNotFound) {
			t.Errorf("expected ErrExperimentNotFound, got %v", err)
		}
	})

	t.Run("lookup failure", func(t *testing.T) {
		store := newFakeStore()
		store.failOn["experiments"] = errors.New("access denied")
		_, err := newTestFetcher(store).Fetch(context.Background(), "run-1", baseParams(), nil, models.NewRunLog())
		if err == nil || !strings.Contains(err.Error(), "access denied") {
			t.Errorf("expected lookup failure, got %v", err)
		}
	})
}

func TestFetchProvenanceFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.add("experiments", map[string]string{"project_hashkey": "p1", "experiment_hashkey": "e1"}, map[string]interface{}{
		"project_hashkey": "p1", "experiment_hashkey": "e1", "bucket_name": "b", "s3_key_prefix": "p1/e1",
	})
	store.putErr = errors.New("table missing")

	runLog := models.NewRunLog()
	meta, err := newTestFetcher(store).Fetch(context.Background(), "run-1", baseParams(), nil, runLog)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if meta.LogItem == nil {
		t.Error("log item should still be returned")
	}
	if runLog.Len() != 1 {
		t.Errorf("expected provenance failure in run log, got %v", runLog.Messages())
	}
}
