package archive

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/pipmirror/pipmirror/pkg/errors"
)

// Unpack extracts archivePath into destDir, dispatching on the suffix table.
// destDir must already exist. Container formats stream their entries into
// destDir; plain compressed files decompress to a single file named by
// stripping the compression suffix. Entries that would escape destDir are
// rejected.
func Unpack(ctx context.Context, archivePath, destDir string) error {
	f, ok := formatFor(archivePath)
	if !ok {
		return errors.New(errors.ErrCodeUnsupported, "no unpack support for %s", filepath.Base(archivePath))
	}

	in, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "open archive %s", archivePath)
	}
	defer in.Close()

	if f.decomp != nil {
		target := filepath.Join(destDir, StripSuffix(filepath.Base(archivePath)))
		return decompress(f.decomp, in, target)
	}

	err = f.extractor.Extract(ctx, in, func(ctx context.Context, fi archives.FileInfo) error {
		return writeEntry(destDir, fi)
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "unpack %s", filepath.Base(archivePath))
	}
	return nil
}

// writeEntry materializes a single archive entry under destDir.
func writeEntry(destDir string, fi archives.FileInfo) error {
	name := path.Clean(fi.NameInArchive)
	if name == "." || name == "" {
		return nil
	}
	if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return errors.New(errors.ErrCodeIO, "archive entry %q escapes destination", fi.NameInArchive)
	}
	target := filepath.Join(destDir, filepath.FromSlash(name))

	switch {
	case fi.IsDir():
		return os.MkdirAll(target, 0o755)
	case fi.LinkTarget != "":
		if linkEscapes(name, fi.LinkTarget) {
			return errors.New(errors.ErrCodeIO, "archive link %q -> %q escapes destination", fi.NameInArchive, fi.LinkTarget)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Symlink(fi.LinkTarget, target)
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		r, err := fi.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		return writeFile(target, r, fi.Mode())
	}
}

// linkEscapes reports whether a symlink at name pointing to target would
// resolve outside the destination root. Absolute targets and targets
// whose resolution climbs past the root are rejected; a symlink inside
// the tree may otherwise be followed by a later entry and redirect its
// write outside the destination.
func linkEscapes(name, target string) bool {
	if path.IsAbs(target) || filepath.IsAbs(target) {
		return true
	}
	resolved := path.Join(path.Dir(name), filepath.ToSlash(target))
	return resolved == ".." || strings.HasPrefix(resolved, "../")
}

// decompress writes the decompressed contents of in to target.
func decompress(c archives.Compression, in io.Reader, target string) error {
	r, err := c.OpenReader(in)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "decompress %s", filepath.Base(target))
	}
	defer r.Close()
	if err := writeFile(target, r, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "write %s", target)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode fs.FileMode) error {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	w, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
