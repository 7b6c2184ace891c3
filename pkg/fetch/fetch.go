// Package fetch locates and runs the external package-fetch tool (pip).
//
// The tool is never reimplemented here: it is resolved on the executable
// search path and invoked with inherited standard streams, so its own
// output passes through live.
package fetch

import (
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"strings"

	"github.com/pipmirror/pipmirror/pkg/errors"
)

// candidates are the executable names tried in priority order.
var candidates = []string{"pip3", "pip"}

// Locate resolves the fetch tool on PATH, trying each candidate name in
// order. The lookup is repeated on every call; results are never cached.
func Locate() (string, error) {
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New(errors.ErrCodeToolNotFound,
		"no fetch tool found on PATH (tried: %s)", strings.Join(candidates, ", "))
}

// Command builds the fetch-tool argument vector for downloading reqs.
// verbose selects the tool's -v flag instead of -q.
func Command(bin string, downloadDir, buildDir, cacheDir string, verbose bool, reqs []string) []string {
	quiet := "-q"
	if verbose {
		quiet = "-v"
	}
	argv := []string{bin, quiet, "install", "-I", "-U",
		"--download", downloadDir,
		"--build", buildDir,
		"--download-cache", cacheDir,
	}
	return append(argv, reqs...)
}

// Run executes argv to completion with inherited standard streams.
// A non-zero exit is reported as a COMMAND_FAILED error carrying the
// command line and exit code.
func Run(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return errors.Wrap(errors.ErrCodeCommandFailed,
			&errors.CommandError{Command: argv, ExitCode: exitErr.ExitCode()},
			"fetch tool failed")
	}
	return errors.Wrap(errors.ErrCodeCommandFailed, err, "run %s", argv[0])
}
