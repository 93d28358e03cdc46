package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"experiment-runner/core/logger"
	"experiment-runner/core/models"
)

// BlobStore copies objects between blob storage and the local filesystem
type BlobStore interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	DownloadFile(ctx context.Context, bucket, key, localPath string) error
	UploadFile(ctx context.Context, localPath, bucket, key, contentType string) error
}

// Downloader stages a run's inputs into its workspace
type Downloader struct {
	store BlobStore
	log   *logger.Logger
}

// NewDownloader creates a new downloader
func NewDownloader(store BlobStore, log *logger.Logger) *Downloader {
	return &Downloader{store: store, log: log}
}

// Download copies the model package, dataset files, experiment config and
// any profile or model-artifact files referenced by meta. A failed object
// only skips that object: it is noted in runLog and the rest proceed. The
// returned error joins every failure.
func (d *Downloader) Download(ctx context.Context, meta *models.Metadata, ws *Workspace, runLog *models.RunLog) (int, error) {
	s := &downloadSession{Downloader: d, ctx: ctx, runLog: runLog}

	if m := meta.Model; m != nil {
		s.prefix(m.BucketName, m.ZipKeyPath, ws.Root)
	}

	if ds := meta.Dataset; ds != nil {
		for _, key := range []string{ds.SampleDFKey, ds.ColumnInfoKey} {
			if key != "" {
				s.file(ds.BucketName, key, ws.Input(InputMeta))
			}
		}
		s.prefix(ds.BucketName, ds.DFPrefix, ws.Input(InputDF))
	}

	if exp := meta.Experiment; exp != nil {
		s.file(exp.BucketName, exp.ConfigKey(), ws.Input(InputConf))
	}

	if p := meta.Profile; p != nil {
		s.manifest(p.BucketName, p.Artifacts, ws.Input(InputProfile), func(string) bool { return true })
	}

	if ma := meta.ModelArtifact; ma != nil {
		s.manifest(ma.BucketName, ma.Artifacts, ws.Input(InputModel), func(prefix string) bool {
			return strings.Contains(prefix, "artifacts/model")
		})
	}

	return s.count, errors.Join(s.errs...)
}

type downloadSession struct {
	*Downloader
	ctx    context.Context
	runLog *models.RunLog
	count  int
	errs   []error
}

func (s *downloadSession) fail(err error) {
	s.log.Warn("Download failed", "error", err)
	s.runLog.AddError("download", err)
	s.errs = append(s.errs, err)
}

// file downloads a single object into dir, keeping its base name
func (s *downloadSession) file(bucket, key, dir string) {
	local := filepath.Join(dir, path.Base(key))
	if err := s.store.DownloadFile(s.ctx, bucket, key, local); err != nil {
		s.fail(err)
		return
	}
	s.log.Info("Downloaded", "source", "s3://"+bucket+"/"+key, "path", local)
	s.count++
}

// prefix downloads every object under prefix into dir, keeping relative paths
func (s *downloadSession) prefix(bucket, prefix, dir string) {
	if prefix == "" {
		s.fail(fmt.Errorf("empty prefix for bucket %s", bucket))
		return
	}
	keys, err := s.store.ListKeys(s.ctx, bucket, prefix)
	if err != nil {
		s.fail(err)
		return
	}
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		local, err := localPathFor(dir, prefix, key)
		if errors.Is(err, errOutsidePrefix) {
			s.log.Debug("Skipping key outside prefix", "key", key, "prefix", prefix)
			continue
		}
		if err != nil {
			s.fail(err)
			continue
		}
		if err := s.store.DownloadFile(s.ctx, bucket, key, local); err != nil {
			s.fail(err)
			continue
		}
		s.log.Debug("Downloaded", "source", "s3://"+bucket+"/"+key, "path", local)
		s.count++
	}
}

// manifest downloads the files listed under each accepted prefix of an artifacts map
func (s *downloadSession) manifest(bucket string, m models.Manifest, dir string, accept func(string) bool) {
	for _, prefix := range m.Prefixes() {
		if !accept(prefix) {
			continue
		}
		cleaned := CleanPrefix(prefix)
		for _, file := range m[prefix] {
			s.file(bucket, cleaned+"/"+file, dir)
		}
	}
}

// CleanPrefix strips trailing '.' and '/' characters, as left by manifests
// whose root folder was recorded as "<prefix>/."
func CleanPrefix(prefix string) string {
	return strings.TrimRight(prefix, "./")
}

// errOutsidePrefix marks a listed key that only shares a name prefix,
// e.g. data/df_old/x under data/df
var errOutsidePrefix = errors.New("key is outside prefix")

// localPathFor maps key under prefix to a path under dir, refusing keys that
// are not under the prefix folder or that escape dir
func localPathFor(dir, prefix, key string) (string, error) {
	folder := strings.TrimSuffix(prefix, "/")
	var rel string
	switch {
	case key == folder:
		rel = path.Base(key)
	case strings.HasPrefix(key, folder+"/"):
		rel = key[len(folder)+1:]
	default:
		return "", fmt.Errorf("%w: %s not under %s", errOutsidePrefix, key, prefix)
	}

	local := filepath.Join(dir, filepath.FromSlash(rel))
	if !strings.HasPrefix(local, filepath.Clean(dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("key %s escapes %s", key, dir)
	}
	return local, nil
}
