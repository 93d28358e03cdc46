package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"experiment-runner/core/logger"
)

type fakeIdentity struct {
	account string
	region  string
	err     error
}

func (f fakeIdentity) AccountID(context.Context) (string, error) { return f.account, f.err }
func (f fakeIdentity) Region() string                            { return f.region }

func TestImageURI(t *testing.T) {
	tests := []struct {
		name    string
		repo    string
		tag     string
		want    string
		wantErr bool
	}{
		{"tagged", "automl/runner", "v1", "123456789012.dkr.ecr.ap-northeast-2.amazonaws.com/automl/runner:v1", false},
		{"default tag", "runner", "", "123456789012.dkr.ecr.ap-northeast-2.amazonaws.com/runner:latest", false},
		{"invalid repository", "Runner!", "v1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageURI("123456789012", "ap-northeast-2", tt.repo, tt.tag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ImageURI = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRenderBuiltinTemplates(t *testing.T) {
	id := fakeIdentity{account: "123456789012", region: "us-east-1"}

	var dockerfile bytes.Buffer
	if err := Render(context.Background(), id, RenderOptions{Kind: KindDockerfile}, &dockerfile); err != nil {
		t.Fatalf("Render dockerfile: %v", err)
	}
	if !strings.Contains(dockerfile.String(), "AWS_REGION=us-east-1") {
		t.Errorf("dockerfile:\n%s", dockerfile.String())
	}

	var taskDef bytes.Buffer
	opts := RenderOptions{Kind: KindTaskDefinition, Repository: "runner", Tag: "v2"}
	if err := Render(context.Background(), id, opts, &taskDef); err != nil {
		t.Fatalf("Render task definition: %v", err)
	}
	var doc struct {
		ExecutionRoleArn     string `json:"executionRoleArn"`
		ContainerDefinitions []struct {
			Image string `json:"image"`
		} `json:"containerDefinitions"`
	}
	if err := json.Unmarshal(taskDef.Bytes(), &doc); err != nil {
		t.Fatalf("task definition is not JSON: %v\n%s", err, taskDef.String())
	}
	if doc.ContainerDefinitions[0].Image != "123456789012.dkr.ecr.us-east-1.amazonaws.com/runner:v2" {
		t.Errorf("image = %s", doc.ContainerDefinitions[0].Image)
	}
	if !strings.Contains(doc.ExecutionRoleArn, "123456789012") {
		t.Errorf("executionRoleArn = %s", doc.ExecutionRoleArn)
	}
}

func TestRenderCustomTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.tmpl")
	if err := os.WriteFile(path, []byte("{{ .account_id }}@{{ .region_name }}"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := Render(context.Background(), fakeIdentity{account: "1", region: "eu-west-1"}, RenderOptions{TemplatePath: path}, &out)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out.String() != "1@eu-west-1" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name string
		id   fakeIdentity
		opts RenderOptions
	}{
		{"unknown kind", fakeIdentity{account: "1"}, RenderOptions{Kind: "helm"}},
		{"identity fails", fakeIdentity{err: errors.New("expired token")}, RenderOptions{Kind: KindDockerfile}},
		{"missing template", fakeIdentity{account: "1"}, RenderOptions{TemplatePath: "/nonexistent/t.tmpl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := Render(context.Background(), tt.id, tt.opts, &out); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantRepo   string
		wantRegion string
		wantErr    bool
	}{
		{"plain name", "automl/runner", "automl/runner", "us-west-2", false},
		{"image uri", "123456789012.dkr.ecr.ap-northeast-2.amazonaws.com/automl/runner:v1", "automl/runner", "ap-northeast-2", false},
		{"image uri without tag", "123456789012.dkr.ecr.eu-west-1.amazonaws.com/runner", "runner", "eu-west-1", false},
		{"empty", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, region, err := ParseRepository(tt.ref, "us-west-2")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if repo != tt.wantRepo || region != tt.wantRegion {
				t.Errorf("ParseRepository = %s, %s; want %s, %s", repo, region, tt.wantRepo, tt.wantRegion)
			}
		})
	}
}

type fakeRegistry struct {
	digests []string
	batches [][]string
}

func (r *fakeRegistry) ListUntaggedImageDigests(context.Context, string, string) ([]string, error) {
	return r.digests, nil
}

func (r *fakeRegistry) DeleteImages(_ context.Context, _, _ string, digests []string) ([]string, []string, error) {
	r.batches = append(r.batches, digests)
	var failures []string
	if digests[0] == "sha256:0" {
		failures = append(failures, "sha256:0: ImageReferencedByManifestList")
		return digests[1:], failures, nil
	}
	return digests, failures, nil
}

func TestPruneUntagged(t *testing.T) {
	registry := &fakeRegistry{}
	for i := 0; i < 250; i++ {
		registry.digests = append(registry.digests, fmt.Sprintf("sha256:%d", i))
	}

	result, err := PruneUntagged(context.Background(), registry, "runner", "us-east-1", logger.Nop())
	if err != nil {
		t.Fatalf("PruneUntagged: %v", err)
	}
	if len(registry.batches) != 3 || len(registry.batches[0]) != 100 || len(registry.batches[2]) != 50 {
		t.Errorf("batch sizes = %d batches", len(registry.batches))
	}
	if result.Found != 250 || len(result.Deleted) != 249 || len(result.Failures) != 1 {
		t.Errorf("result = found %d deleted %d failures %d", result.Found, len(result.Deleted), len(result.Failures))
	}
}

func TestPruneUntaggedNothingToDo(t *testing.T) {
	registry := &fakeRegistry{}
	result, err := PruneUntagged(context.Background(), registry, "runner", "us-east-1", logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 0 || len(registry.batches) != 0 {
		t.Errorf("result = %+v, batches = %d", result, len(registry.batches))
	}
}
