package storage

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"path/filepath"

	"experiment-runner/config"
	"experiment-runner/core/logger"
	"experiment-runner/core/models"
)

// Uploader publishes a run's artifacts directory to blob storage
type Uploader struct {
	store BlobStore
	log   *logger.Logger
}

// NewUploader creates a new uploader
func NewUploader(store BlobStore, log *logger.Logger) *Uploader {
	return &Uploader{store: store, log: log}
}

// UploadDirectory uploads every file under localDir to bucket, keyed
// prefix/<relative path>. The manifest has an entry for every directory
// walked (the root as prefix itself) listing the files uploaded into it;
// failed uploads are noted in runLog and left out.
func (u *Uploader) UploadDirectory(ctx context.Context, localDir, bucket, prefix string, runLog *models.RunLog) (models.Manifest, error) {
	manifest := models.Manifest{}

	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}

		if d.IsDir() {
			manifest[folderKey(prefix, rel)] = []string{}
			return nil
		}

		key := path.Join(prefix, filepath.ToSlash(rel))
		contentType := mime.TypeByExtension(filepath.Ext(p))
		if err := u.store.UploadFile(ctx, p, bucket, key, contentType); err != nil {
			u.log.Warn("Upload failed", "path", p, "key", key, "error", err)
			runLog.AddError("upload", err)
			return nil
		}
		u.log.Info("Uploaded", "path", p, "target", "s3://"+bucket+"/"+key)

		folder := folderKey(prefix, filepath.Dir(rel))
		manifest[folder] = append(manifest[folder], d.Name())
		return nil
	})
	if err != nil {
		return manifest, fmt.Errorf("failed to walk %s: %w", localDir, err)
	}
	return manifest, nil
}

func folderKey(prefix, relDir string) string {
	if relDir == "." {
		return prefix
	}
	return path.Join(prefix, filepath.ToSlash(relDir))
}

// ExperimentDone reports whether any completion marker was uploaded under
// the artifacts prefix
func ExperimentDone(manifest models.Manifest, prefix string, markers []config.CompletionMarker) bool {
	for _, m := range markers {
		if manifest.Contains(path.Join(prefix, m.Dir), m.File) {
			return true
		}
	}
	return false
}
