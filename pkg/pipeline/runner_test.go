package pipeline

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pipmirror/pipmirror/pkg/errors"
	"github.com/pipmirror/pipmirror/pkg/stage"
)

// writeSdist creates a minimal gzipped sdist: one top-level directory with
// a PKG-INFO declaring name and version.
func writeSdist(t *testing.T, path, root, name, version string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	content := "Name: " + name + "\nVersion: " + version + "\n"
	hdr := &tar.Header{Name: root + "/PKG-INFO", Mode: 0o644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
}

// stubRunner returns a runner whose fetch step invokes populate instead of
// a real tool.
func stubRunner(populate func() error) *Runner {
	r := NewRunner(nil)
	r.Locate = func() (string, error) { return "/stub/pip", nil }
	r.Run = func(ctx context.Context, argv []string) error { return populate() }
	return r
}

// fakeProgress records indicator lifecycle calls.
type fakeProgress struct {
	started bool
	stopped bool
}

func (p *fakeProgress) Start() { p.started = true }
func (p *fakeProgress) Stop()  { p.stopped = true }

func TestExecuteEndToEnd(t *testing.T) {
	download := t.TempDir()
	r := stubRunner(func() error {
		writeSdist(t, filepath.Join(download, "foo-1.0.tar.gz"), "foo-1.0", "foo", "1.0")
		return nil
	})

	var out bytes.Buffer
	result, err := r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"foo==1.0"},
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	archivePath := filepath.Join(download, "foo-1.0.tar.gz")
	req, ok := result.Saved[archivePath]
	if !ok {
		t.Fatalf("Saved missing %s: %v", archivePath, result.Saved)
	}
	if req.String() != "foo==1.0" {
		t.Errorf("requirement = %s, want foo==1.0", req)
	}

	text := out.String()
	if !strings.Contains(text, "-----------\nDownloading\n-----------\n") {
		t.Errorf("missing Downloading banner in output:\n%s", text)
	}
	if !strings.Contains(text, "-----\nSaved\n-----\n") {
		t.Errorf("missing Saved banner in output:\n%s", text)
	}
	if !strings.Contains(text, "foo-1.0.tar.gz (foo==1.0)") {
		t.Errorf("missing saved line in output:\n%s", text)
	}
	if strings.Index(text, "Downloading") > strings.Index(text, "Saved") {
		t.Error("Saved section printed before Downloading")
	}
}

func TestExecuteReportSortedByBasename(t *testing.T) {
	download := t.TempDir()
	r := stubRunner(func() error {
		writeSdist(t, filepath.Join(download, "zeta-1.0.tar.gz"), "zeta-1.0", "zeta", "1.0")
		writeSdist(t, filepath.Join(download, "alpha-2.0.tar.gz"), "alpha-2.0", "alpha", "2.0")
		return nil
	})

	var out bytes.Buffer
	_, err := r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"zeta", "alpha"},
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	text := out.String()
	if strings.Index(text, "alpha-2.0.tar.gz") > strings.Index(text, "zeta-1.0.tar.gz") {
		t.Errorf("saved lines not sorted by basename:\n%s", text)
	}
}

func TestExecuteWipesExistingArchives(t *testing.T) {
	download := t.TempDir()
	if err := os.WriteFile(filepath.Join(download, "old.zip"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(download, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := stubRunner(func() error { return nil })

	var out bytes.Buffer
	result, err := r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"foo"},
		Wipe:        true,
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(result.Deleted) != 1 || result.Deleted[0] != "old.zip" {
		t.Errorf("Deleted = %v, want [old.zip]", result.Deleted)
	}
	if _, err := os.Stat(filepath.Join(download, "old.zip")); !os.IsNotExist(err) {
		t.Error("old.zip should be wiped before the fetch")
	}
	if _, err := os.Stat(filepath.Join(download, "notes.txt")); err != nil {
		t.Error("notes.txt should survive the wipe")
	}

	text := out.String()
	if !strings.Contains(text, "--------\nCleaning\n--------\n") {
		t.Errorf("missing Cleaning banner:\n%s", text)
	}
	if !strings.Contains(text, "old.zip (X)") {
		t.Errorf("missing deletion line:\n%s", text)
	}
}

func TestExecuteNoWipeKeepsArchives(t *testing.T) {
	download := t.TempDir()
	writeSdist(t, filepath.Join(download, "kept-1.0.tar.gz"), "kept-1.0", "kept", "1.0")

	r := stubRunner(func() error { return nil })

	var out bytes.Buffer
	result, err := r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"kept"},
		Wipe:        false,
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.Contains(out.String(), "Cleaning") {
		t.Error("Cleaning banner printed with wipe disabled")
	}
	if len(result.Saved) != 1 {
		t.Errorf("Saved = %v, want the pre-existing archive", result.Saved)
	}
}

func TestExecuteToolNotFound(t *testing.T) {
	download := t.TempDir()
	r := NewRunner(nil)
	r.Locate = func() (string, error) {
		return "", errors.New(errors.ErrCodeToolNotFound, "no fetch tool found")
	}

	var out bytes.Buffer
	_, err := r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"foo"},
		Out:         &out,
	})
	if !errors.Is(err, errors.ErrCodeToolNotFound) {
		t.Fatalf("Execute() error = %v, want TOOL_NOT_FOUND", err)
	}

	// Staging precedes tool resolution, so the working directories exist.
	dirs := stage.Derive(download)
	for _, dir := range []string{dirs.Extract, dirs.Cache, dirs.Build} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("staged dir %s missing after ToolNotFound: %v", dir, err)
		}
	}
	if strings.Contains(out.String(), "Saved") {
		t.Error("partial Saved report printed on failure")
	}
}

func TestExecuteCommandFailed(t *testing.T) {
	download := t.TempDir()
	r := NewRunner(nil)
	r.Locate = func() (string, error) { return "/stub/pip", nil }
	r.Run = func(ctx context.Context, argv []string) error {
		return errors.Wrap(errors.ErrCodeCommandFailed,
			&errors.CommandError{Command: argv, ExitCode: 2}, "fetch tool failed")
	}

	var out bytes.Buffer
	_, err := r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"foo"},
		Out:         &out,
	})
	if !errors.Is(err, errors.ErrCodeCommandFailed) {
		t.Fatalf("Execute() error = %v, want COMMAND_FAILED", err)
	}
	if strings.Contains(out.String(), "Saved") {
		t.Error("partial Saved report printed on failure")
	}
}

func TestExecuteDuplicateTarget(t *testing.T) {
	download := t.TempDir()
	r := stubRunner(func() error {
		writeSdist(t, filepath.Join(download, "foo-1.0.tar.gz"), "foo-1.0", "foo", "1.0")
		writeSdist(t, filepath.Join(download, "foo-1.0.tgz"), "foo-1.0", "foo", "1.0")
		return nil
	})

	var out bytes.Buffer
	_, err := r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"foo"},
		Out:         &out,
	})
	if !errors.Is(err, errors.ErrCodeDuplicateTarget) {
		t.Fatalf("Execute() error = %v, want DUPLICATE_TARGET", err)
	}
}

func TestExecuteValidatesOptions(t *testing.T) {
	r := NewRunner(nil)

	_, err := r.Execute(context.Background(), Options{Requests: []string{"foo"}})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("missing dir: error = %v, want INVALID_INPUT", err)
	}

	_, err = r.Execute(context.Background(), Options{DownloadDir: t.TempDir()})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("missing requests: error = %v, want INVALID_INPUT", err)
	}
}

func TestExecuteProgressLifecycle(t *testing.T) {
	download := t.TempDir()
	p := &fakeProgress{}

	r := NewRunner(nil)
	r.NewProgress = func() Progress { return p }
	r.Locate = func() (string, error) { return "/stub/pip", nil }
	r.Run = func(ctx context.Context, argv []string) error {
		if !p.started {
			t.Error("progress not started before fetch")
		}
		if p.stopped {
			t.Error("progress stopped before fetch finished")
		}
		return errors.Wrap(errors.ErrCodeCommandFailed,
			&errors.CommandError{Command: argv, ExitCode: 1}, "fetch tool failed")
	}

	var out bytes.Buffer
	_, _ = r.Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"foo"},
		Out:         &out,
	})
	if !p.stopped {
		t.Error("progress must be stopped even when the fetch fails")
	}
}

// End-to-end through the real locator and process runner: a stub fetch
// tool on PATH copies a prepared sdist into the download directory.
func TestExecuteWithStubToolOnPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs are unix-only")
	}

	staging := t.TempDir()
	src := filepath.Join(staging, "foo-1.0.tar.gz")
	writeSdist(t, src, "foo-1.0", "foo", "1.0")

	download := t.TempDir()
	binDir := t.TempDir()
	script := fmt.Sprintf("#!/bin/sh\ncp %q %q\n", src, filepath.Join(download, "foo-1.0.tar.gz"))
	if err := os.WriteFile(filepath.Join(binDir, "pip3"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	var out bytes.Buffer
	result, err := NewRunner(nil).Execute(context.Background(), Options{
		DownloadDir: download,
		Requests:    []string{"foo==1.0"},
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	req, ok := result.Saved[filepath.Join(download, "foo-1.0.tar.gz")]
	if !ok || req.String() != "foo==1.0" {
		t.Errorf("Saved = %v, want foo==1.0 entry", result.Saved)
	}
	if !strings.Contains(out.String(), "foo-1.0.tar.gz (foo==1.0)") {
		t.Errorf("missing saved line:\n%s", out.String())
	}
}
