// Package stage prepares the working directories for a pipeline run.
//
// The extract and build directories are volatile: they are destroyed and
// recreated on every run so no stale artifact can leak into the next
// unpack. The cache directory persists across runs because the fetch tool
// reuses it to speed up repeated downloads.
package stage

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pipmirror/pipmirror/pkg/archive"
	"github.com/pipmirror/pipmirror/pkg/errors"
)

// Fixed names of the auxiliary directories under the download directory.
const (
	ExtractDirName = ".extract"
	CacheDirName   = ".cache"
	BuildDirName   = ".build"
)

// Dirs holds the four working directory paths of a run.
type Dirs struct {
	Download string
	Extract  string
	Cache    string
	Build    string
}

// Derive computes the auxiliary paths under downloadDir without touching
// the filesystem.
func Derive(downloadDir string) Dirs {
	return Dirs{
		Download: downloadDir,
		Extract:  filepath.Join(downloadDir, ExtractDirName),
		Cache:    filepath.Join(downloadDir, CacheDirName),
		Build:    filepath.Join(downloadDir, BuildDirName),
	}
}

// Prepare stages the working directories for a run. The download directory
// is created if missing, extract and build are wiped and recreated, and
// cache is created only when absent. Any failure is fatal: the pipeline
// must not continue in a partially staged state.
func Prepare(downloadDir string) (Dirs, error) {
	d := Derive(downloadDir)

	if err := os.MkdirAll(d.Download, 0o755); err != nil {
		return Dirs{}, errors.Wrap(errors.ErrCodeIO, err, "create download dir %s", d.Download)
	}
	for _, dir := range []string{d.Extract, d.Build} {
		if err := os.RemoveAll(dir); err != nil {
			return Dirs{}, errors.Wrap(errors.ErrCodeIO, err, "clear %s", dir)
		}
		if err := os.Mkdir(dir, 0o755); err != nil {
			return Dirs{}, errors.Wrap(errors.ErrCodeIO, err, "create %s", dir)
		}
	}
	// Cache persists across runs; only create it when absent.
	if err := os.MkdirAll(d.Cache, 0o755); err != nil {
		return Dirs{}, errors.Wrap(errors.ErrCodeIO, err, "create %s", d.Cache)
	}
	return d, nil
}

// WipeArchives deletes recognized archive files directly inside
// downloadDir (not recursively) and returns their basenames sorted.
func WipeArchives(downloadDir string) ([]string, error) {
	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read download dir %s", downloadDir)
	}

	var deleted []string
	for _, e := range entries {
		if e.IsDir() || !archive.IsArchive(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(downloadDir, e.Name())); err != nil {
			return deleted, errors.Wrap(errors.ErrCodeIO, err, "delete %s", e.Name())
		}
		deleted = append(deleted, e.Name())
	}
	sort.Strings(deleted)
	return deleted, nil
}
