package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Input subdirectories created for every run
const (
	InputProfile = "profile"
	InputMeta    = "meta"
	InputDF      = "df"
	InputConf    = "conf"
	InputModel   = "model"
)

var inputDirs = []string{InputProfile, InputMeta, InputDF, InputConf, InputModel}

// Workspace is the local directory layout of one run:
//
//	<root>/<job_type>/input/{profile,meta,df,conf,model}
//	<root>/<job_type>/artifacts
type Workspace struct {
	Root         string
	JobDir       string
	InputDir     string
	ArtifactsDir string
}

// PrepareWorkspace creates empty input and artifacts directories for a run.
// Anything a previous run left in them is removed; other files under the
// job directory are kept.
func PrepareWorkspace(root, jobType string) (*Workspace, error) {
	if jobType == "" {
		return nil, fmt.Errorf("job type is required")
	}
	jobDir := filepath.Join(root, jobType)
	ws := &Workspace{
		Root:         root,
		JobDir:       jobDir,
		InputDir:     filepath.Join(jobDir, "input"),
		ArtifactsDir: filepath.Join(jobDir, "artifacts"),
	}

	for _, dir := range []string{ws.InputDir, ws.ArtifactsDir} {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", dir, err)
		}
	}
	for _, dir := range inputDirs {
		if err := os.MkdirAll(ws.Input(dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", ws.Input(dir), err)
		}
	}
	if err := os.MkdirAll(ws.ArtifactsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", ws.ArtifactsDir, err)
	}
	return ws, nil
}

// Input returns the path of an input subdirectory
func (w *Workspace) Input(sub string) string {
	return filepath.Join(w.InputDir, sub)
}
