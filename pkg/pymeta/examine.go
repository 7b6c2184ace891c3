package pymeta

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pipmirror/pipmirror/pkg/archive"
	"github.com/pipmirror/pipmirror/pkg/errors"
)

// Examine unpacks archivePath into a fresh subdirectory of extractRoot and
// recovers the requirement metadata of the resulting source tree.
//
// The target subdirectory is named by stripping the archive suffix from the
// basename. A pre-existing target is destroyed first, so re-running Examine
// for the same archive always yields a fresh tree rather than a merge of
// stale and new content.
func Examine(ctx context.Context, archivePath, extractRoot string) (*Requirement, error) {
	info, err := os.Stat(archivePath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, errors.New(errors.ErrCodeFileNotFound, "archive %s is not a regular file", archivePath)
	}
	rootInfo, err := os.Stat(extractRoot)
	if err != nil || !rootInfo.IsDir() {
		return nil, errors.New(errors.ErrCodeFileNotFound, "extract root %s is not a directory", extractRoot)
	}

	target := filepath.Join(extractRoot, archive.StripSuffix(filepath.Base(archivePath)))
	if err := os.RemoveAll(target); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "clear %s", target)
	}
	if err := os.Mkdir(target, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "create %s", target)
	}

	if err := archive.Unpack(ctx, archivePath, target); err != nil {
		return nil, err
	}

	return Recover(sourceRoot(target))
}

// sourceRoot resolves the directory holding the build description. Sdists
// unpack to a single versioned directory inside the target; bundles unpack
// their files directly.
func sourceRoot(target string) string {
	entries, err := os.ReadDir(target)
	if err == nil && len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(target, entries[0].Name())
	}
	return target
}
