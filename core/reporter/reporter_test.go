package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"experiment-runner/core/logger"
	"experiment-runner/core/models"
)

type update struct {
	table  string
	key    map[string]string
	values map[string]interface{}
}

type fakeStore struct {
	updates   []update
	puts      map[string][]interface{}
	updateErr error
	putErr    error
}

func (s *fakeStore) PutItem(_ context.Context, table string, item interface{}) error {
	if s.putErr != nil {
		return s.putErr
	}
	if s.puts == nil {
		s.puts = map[string][]interface{}{}
	}
	s.puts[table] = append(s.puts[table], item)
	return nil
}

func (s *fakeStore) UpdateItem(_ context.Context, table string, key map[string]string, values map[string]interface{}) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, update{table: table, key: key, values: values})
	return nil
}

type fakeNotifier struct {
	successes []string
	failures  []string
	labels    []string
}

func (n *fakeNotifier) SendTaskSuccess(_ context.Context, _, output string) error {
	n.successes = append(n.successes, output)
	return nil
}

func (n *fakeNotifier) SendTaskFailure(_ context.Context, _, errorLabel, cause string) error {
	n.labels = append(n.labels, errorLabel)
	n.failures = append(n.failures, cause)
	return nil
}

var fixedNow = time.Unix(1700000000, 0)

func newTestReporter(store *fakeStore, notifier *fakeNotifier) *Reporter {
	r := NewReporter(store, notifier, logger.Nop())
	r.now = func() time.Time { return fixedNow }
	return r
}

func testOutcome(done bool, token string) Outcome {
	return Outcome{
		RunID: "run-1",
		Params: models.RunParams{
			ProjectHashkey:            "p1",
			ExperimentHashkey:         "e1",
			ExperimentTableName:       "experiments",
			ExperimentResultTableName: "results",
			DatasetTableName:          "datasets",
			Username:                  "kim",
			TaskToken:                 token,
			JobType:                   "train",
		},
		Experiment: &models.Experiment{
			ProjectHashkey:    "p1",
			ExperimentHashkey: "e1",
			FileHashkey:       "f1",
			BucketName:        "b",
			S3KeyPrefix:       "p1/e1",
			DatasetName:       "titanic",
		},
		Manifest:       models.Manifest{"p1/e1/artifacts/model": {"model.pkl"}},
		ExperimentDone: done,
		StartedAt:      fixedNow.Add(-90 * time.Second),
	}
}

func TestReport(t *testing.T) {
	tests := []struct {
		name       string
		done       bool
		wantStatus string
	}{
		{"completed", true, models.StatusCompleted},
		{"incomplete artifacts", false, models.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			notifier := &fakeNotifier{}
			runLog := models.NewRunLog()
			runLog.Add("download: missing sample")

			result, err := newTestReporter(store, notifier).Report(context.Background(), testOutcome(tt.done, "token"), runLog)
			if err != nil {
				t.Fatalf("Report: %v", err)
			}

			if len(store.updates) != 1 {
				t.Fatalf("got %d updates, want 1", len(store.updates))
			}
			u := store.updates[0]
			if u.table != "experiments" || u.key["experiment_hashkey"] != "e1" {
				t.Errorf("update = %+v", u)
			}
			if u.values["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", u.values["status"], tt.wantStatus)
			}
			if u.values["updated_dt"] != "2023-11-15 07:13:20" {
				t.Errorf("updated_dt = %v", u.values["updated_dt"])
			}

			if len(store.puts["results"]) != 1 {
				t.Fatalf("result record not written")
			}
			if result.Elapsed != 90 || result.FileHashkey != "f1" || result.RunID != "run-1" {
				t.Errorf("result = %+v", result)
			}
			if len(result.Logs) != 1 {
				t.Errorf("logs = %v", result.Logs)
			}

			if len(notifier.successes) != 1 {
				t.Fatalf("got %d task successes, want 1", len(notifier.successes))
			}
			var output TaskOutput
			if err := json.Unmarshal([]byte(notifier.successes[0]), &output); err != nil {
				t.Fatal(err)
			}
			if output.StatusCode != 200 || output.Body != tt.wantStatus || output.ExperimentDone != tt.done {
				t.Errorf("output = %+v", output)
			}
			if output.FileHashkey != "f1" {
				t.Errorf("file_hashkey = %q, want the experiment's file hashkey", output.FileHashkey)
			}
		})
	}
}

func TestReportWithoutToken(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}

	if _, err := newTestReporter(store, notifier).Report(context.Background(), testOutcome(true, ""), models.NewRunLog()); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(notifier.successes) != 0 {
		t.Error("workflow signalled without a token")
	}
	if len(store.puts["results"]) != 1 {
		t.Error("result record should still be written")
	}
}

func TestReportWithoutResultTable(t *testing.T) {
	store := &fakeStore{}
	out := testOutcome(true, "token")
	out.Params.ExperimentResultTableName = ""
	runLog := models.NewRunLog()

	result, err := newTestReporter(store, &fakeNotifier{}).Report(context.Background(), out, runLog)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if len(store.puts) != 0 {
		t.Errorf("unexpected puts: %v", store.puts)
	}
	if len(result.Logs) != 1 {
		t.Errorf("logs = %v", result.Logs)
	}
}

func TestReportStoreFailures(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"update fails", &fakeStore{updateErr: errors.New("throttled")}},
		{"put fails", &fakeStore{putErr: errors.New("throttled")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &fakeNotifier{}
			_, err := newTestReporter(tt.store, notifier).Report(context.Background(), testOutcome(true, "token"), models.NewRunLog())
			if err == nil {
				t.Fatal("expected error")
			}
			if len(notifier.successes) != 0 {
				t.Error("task success sent after a store failure")
			}
		})
	}
}

func TestFail(t *testing.T) {
	notifier := &fakeNotifier{}
	r := newTestReporter(&fakeStore{}, notifier)

	if err := r.Fail(context.Background(), "", errors.New("boom"), nil); err != nil {
		t.Fatal(err)
	}
	if len(notifier.failures) != 0 {
		t.Error("failure sent without a token")
	}

	if err := r.Fail(context.Background(), "token", errors.New("boom"), []byte("goroutine 1 [running]:")); err != nil {
		t.Fatal(err)
	}
	if len(notifier.failures) != 1 || notifier.labels[0] != "실험 실패" {
		t.Fatalf("failures = %v labels = %v", notifier.failures, notifier.labels)
	}
	if !strings.HasPrefix(notifier.failures[0], "boom\ngoroutine 1") {
		t.Errorf("cause = %q", notifier.failures[0])
	}
}

func TestTruncateCause(t *testing.T) {
	short := "boom"
	if got := truncateCause(short); got != short {
		t.Errorf("truncateCause(short) = %q", got)
	}

	long := strings.Repeat("실", maxCauseLength)
	got := truncateCause(long)
	if len(got) > maxCauseLength {
		t.Errorf("len = %d, want <= %d", len(got), maxCauseLength)
	}
	if !utf8.ValidString(got) {
		t.Error("truncated cause is not valid UTF-8")
	}
}
